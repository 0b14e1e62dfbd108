// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

// NonceSize is the AES-GCM nonce length (96 bits).
const NonceSize = 12

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SessionKeySize {
		return nil, errors.Errorf("invalid aead key length %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes cipher")
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under key with a fresh random nonce and returns
// nonce ∥ ciphertext ∥ tag. Nonces are never reused under the same key.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "aead nonce")
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal. Any tampering fails authentication.
func Open(key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+gcm.Overhead() {
		return nil, errors.New("sealed data too short")
	}
	plaintext, err := gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, errors.Wrap(err, "aead open")
	}
	return plaintext, nil
}
