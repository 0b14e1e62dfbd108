// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package cry implements the fabric's cryptographic primitives: Ed25519
// identity keys, X25519 session-key agreement, AES-256-GCM sealing and the
// encrypted keystore. It is the only crypto surface in the repository.
package cry

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// KeyPair holds an agent's long-term Ed25519 identity key.
type KeyPair struct {
	priv ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh identity key.
func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate ed25519 key")
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromSeed rebuilds a key pair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("invalid seed length %d", len(seed))
	}
	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Public returns the public key.
func (k *KeyPair) Public() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Seed returns the 32-byte private seed. Callers must treat it as secret.
func (k *KeyPair) Seed() []byte {
	return k.priv.Seed()
}

// Sign signs data with the identity key.
func (k *KeyPair) Sign(data []byte) []byte {
	return ed25519.Sign(k.priv, data)
}

// Fingerprint returns a short hex digest of the public key, for log lines.
func (k *KeyPair) Fingerprint() string {
	return Fingerprint(k.Public())
}

// Fingerprint returns a short hex digest of a public key.
func Fingerprint(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}
