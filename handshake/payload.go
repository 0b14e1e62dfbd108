// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package handshake

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/message"
)

// payload field names carried inside handshake messages.
const (
	fieldEdPub     = "ed25519_public_key"
	fieldXPub      = "x25519_public_key"
	fieldChallenge = "challenge"
	fieldResponse  = "challenge_response"
	fieldConfirm   = "confirmation"
)

func putKey(p map[string]any, field string, key []byte) {
	p[field] = base64.StdEncoding.EncodeToString(key)
}

func getBytes(m *message.SecureMessage, field string) ([]byte, error) {
	v, ok := m.Payload[field]
	if !ok {
		return nil, errs.Errorf(errs.InvalidArgument, "%s payload missing %s", m.MsgType, field)
	}
	s, ok := v.(string)
	if !ok {
		return nil, errs.Errorf(errs.InvalidArgument, "%s payload field %s not a string", m.MsgType, field)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.Errorf(errs.InvalidArgument, "%s payload field %s not base64", m.MsgType, field)
	}
	return raw, nil
}

func getEdKey(m *message.SecureMessage) (ed25519.PublicKey, error) {
	raw, err := getBytes(m, fieldEdPub)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errs.Errorf(errs.InvalidArgument, "ed25519 key length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

func getXKey(m *message.SecureMessage) ([]byte, error) {
	raw, err := getBytes(m, fieldXPub)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errs.Errorf(errs.InvalidArgument, "x25519 key length %d", len(raw))
	}
	return raw, nil
}
