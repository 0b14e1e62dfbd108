// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// KDFIterations is the PBKDF2 work factor for keys at rest.
const KDFIterations = 600_000

type keystoreFile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Sealed     []byte `json:"sealed"` // nonce ∥ ciphertext ∥ tag over the seed
}

// SaveKeyPair writes the key pair to path. With a non-empty passphrase the
// seed is encrypted with PBKDF2-SHA256 + AES-256-GCM; otherwise it is stored
// plain. The file is created with mode 0600 either way.
func SaveKeyPair(path string, kp *KeyPair, passphrase []byte) error {
	file := keystoreFile{Version: 1}

	if len(passphrase) == 0 {
		file.KDF = "none"
		file.Sealed = kp.Seed()
	} else {
		salt := make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return errors.Wrap(err, "keystore salt")
		}
		key := pbkdf2.Key(passphrase, salt, KDFIterations, SessionKeySize, sha256.New)
		sealed, err := Seal(key, kp.Seed(), nil)
		if err != nil {
			return errors.Wrap(err, "seal seed")
		}
		file.KDF = "pbkdf2-sha256"
		file.Iterations = KDFIterations
		file.Salt = salt
		file.Sealed = sealed
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKeyPair reads a key pair saved by SaveKeyPair.
func LoadKeyPair(path string, passphrase []byte) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read keystore")
	}
	var file keystoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "parse keystore")
	}

	switch file.KDF {
	case "none":
		return KeyPairFromSeed(file.Sealed)
	case "pbkdf2-sha256":
		if len(passphrase) == 0 {
			return nil, errors.New("keystore is encrypted, passphrase required")
		}
		if file.Iterations < KDFIterations {
			return nil, errors.Errorf("keystore kdf iterations %d below minimum", file.Iterations)
		}
		key := pbkdf2.Key(passphrase, file.Salt, file.Iterations, SessionKeySize, sha256.New)
		seed, err := Open(key, file.Sealed, nil)
		if err != nil {
			return nil, errors.Wrap(err, "unseal seed (wrong passphrase?)")
		}
		return KeyPairFromSeed(seed)
	default:
		return nil, errors.Errorf("unknown keystore kdf %q", file.KDF)
	}
}
