// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// SessionKeySize is the derived symmetric key length.
const SessionKeySize = 32

// EphemeralKeyPair is a per-handshake X25519 key pair, discarded after the
// session key has been derived.
type EphemeralKeyPair struct {
	priv [curve25519.ScalarSize]byte
	Pub  [curve25519.PointSize]byte
}

// GenerateEphemeral creates a fresh X25519 key pair.
func GenerateEphemeral() (*EphemeralKeyPair, error) {
	var kp EphemeralKeyPair
	if _, err := io.ReadFull(rand.Reader, kp.priv[:]); err != nil {
		return nil, errors.Wrap(err, "generate x25519 key")
	}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, errors.Wrap(err, "derive x25519 public")
	}
	copy(kp.Pub[:], pub)
	return &kp, nil
}

// Destroy zeroes the private scalar.
func (kp *EphemeralKeyPair) Destroy() {
	for i := range kp.priv {
		kp.priv[i] = 0
	}
}

// DeriveSessionKey computes the shared session key:
// X25519(own_priv, peer_pub) fed through HKDF-SHA256 with the given salt and
// the protocol info label. Both handshake ends derive identical keys.
func (kp *EphemeralKeyPair) DeriveSessionKey(peerPub, salt []byte, info string) ([]byte, error) {
	if len(peerPub) != curve25519.PointSize {
		return nil, errors.Errorf("invalid x25519 public key length %d", len(peerPub))
	}
	secret, err := curve25519.X25519(kp.priv[:], peerPub)
	if err != nil {
		return nil, errors.Wrap(err, "x25519")
	}
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	key := make([]byte, SessionKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "hkdf expand")
	}
	return key, nil
}

// HandshakeSalt computes the key-derivation salt as SHA-256 over the
// concatenation of session id and the four public keys, in a fixed order.
func HandshakeSalt(sessionID string, initXPub, respXPub, initEdPub, respEdPub []byte) []byte {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write(initXPub)
	h.Write(respXPub)
	h.Write(initEdPub)
	h.Write(respEdPub)
	return h.Sum(nil)
}
