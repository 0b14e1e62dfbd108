// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("delegate task t-1 to beta")
	sig := kp.Sign(msg)
	assert.True(t, Verify(kp.Public(), msg, sig))

	// tampered message
	assert.False(t, Verify(kp.Public(), []byte("delegate task t-2 to beta"), sig))
	// malformed inputs fail closed
	assert.False(t, Verify(nil, msg, sig))
	assert.False(t, Verify(kp.Public(), msg, sig[:10]))
	assert.False(t, Verify(kp.Public()[:5], msg, sig))
}

func TestDeriveSessionKeyAgreement(t *testing.T) {
	a, err := GenerateEphemeral()
	require.NoError(t, err)
	b, err := GenerateEphemeral()
	require.NoError(t, err)

	salt := HandshakeSalt("s1", a.Pub[:], b.Pub[:], []byte("edA"), []byte("edB"))

	ka, err := a.DeriveSessionKey(b.Pub[:], salt, "a2a-v1-session-key")
	require.NoError(t, err)
	kb, err := b.DeriveSessionKey(a.Pub[:], salt, "a2a-v1-session-key")
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.Len(t, ka, SessionKeySize)

	// different salt, different key
	otherSalt := HandshakeSalt("s2", a.Pub[:], b.Pub[:], []byte("edA"), []byte("edB"))
	kc, err := a.DeriveSessionKey(b.Pub[:], otherSalt, "a2a-v1-session-key")
	require.NoError(t, err)
	assert.NotEqual(t, ka, kc)
}

func TestSealOpen(t *testing.T) {
	a, _ := GenerateEphemeral()
	b, _ := GenerateEphemeral()
	salt := HandshakeSalt("s1", a.Pub[:], b.Pub[:], nil, nil)
	key, err := a.DeriveSessionKey(b.Pub[:], salt, "a2a-v1-session-key")
	require.NoError(t, err)

	plaintext := []byte(`{"msg_type":"ping"}`)
	aad := []byte("s1")

	sealed, err := Seal(key, plaintext, aad)
	require.NoError(t, err)

	got, err := Open(key, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	// tampering fails authentication
	sealed[len(sealed)-1] ^= 0x01
	_, err = Open(key, sealed, aad)
	assert.Error(t, err)
	sealed[len(sealed)-1] ^= 0x01

	// wrong aad fails
	_, err = Open(key, sealed, []byte("s2"))
	assert.Error(t, err)

	// fresh nonce every call
	sealed2, err := Seal(key, plaintext, aad)
	require.NoError(t, err)
	assert.NotEqual(t, sealed[:NonceSize], sealed2[:NonceSize])
}

func TestKeystoreRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, SaveKeyPair(path, kp, []byte("passphrase")))

	loaded, err := LoadKeyPair(path, []byte("passphrase"))
	require.NoError(t, err)
	assert.Equal(t, kp.Public(), loaded.Public())

	_, err = LoadKeyPair(path, []byte("wrong"))
	assert.Error(t, err)
	_, err = LoadKeyPair(path, nil)
	assert.Error(t, err)
}

func TestKeystorePlain(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, SaveKeyPair(path, kp, nil))

	loaded, err := LoadKeyPair(path, nil)
	require.NoError(t, err)
	assert.Equal(t, kp.Public(), loaded.Public())
}

func TestFingerprint(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	fp := kp.Fingerprint()
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint(kp.Public()))
}
