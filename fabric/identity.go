// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fabric

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

// Identity is the public face of an agent: who it is, where to reach it
// and what it can do.
type Identity struct {
	AgentID      AgentID  `json:"agent_id"`
	DisplayName  string   `json:"display_name"`
	PublicKey    []byte   `json:"-"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities"`
	Reputation   float64  `json:"reputation"`
}

type identityJSON struct {
	AgentID      AgentID  `json:"agent_id"`
	DisplayName  string   `json:"display_name"`
	PublicKey    string   `json:"ed25519_public_key"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities"`
	Reputation   float64  `json:"reputation"`
}

var (
	_ json.Marshaler   = (*Identity)(nil)
	_ json.Unmarshaler = (*Identity)(nil)
)

// MarshalJSON implements json.Marshaler. The public key travels base64 encoded.
func (id *Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(&identityJSON{
		AgentID:      id.AgentID,
		DisplayName:  id.DisplayName,
		PublicKey:    base64.StdEncoding.EncodeToString(id.PublicKey),
		Endpoint:     id.Endpoint,
		Capabilities: id.Capabilities,
		Reputation:   id.Reputation,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var raw identityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	key, err := base64.StdEncoding.DecodeString(raw.PublicKey)
	if err != nil {
		return errors.Wrap(err, "decode public key")
	}
	if len(key) != 0 && len(key) != ed25519.PublicKeySize {
		return errors.Errorf("invalid ed25519 public key length %d", len(key))
	}
	*id = Identity{
		AgentID:      raw.AgentID,
		DisplayName:  raw.DisplayName,
		PublicKey:    key,
		Endpoint:     raw.Endpoint,
		Capabilities: raw.Capabilities,
		Reputation:   raw.Reputation,
	}
	return nil
}

// HasCapability returns whether cap is listed.
func (id *Identity) HasCapability(cap string) bool {
	for _, c := range id.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
