// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package message defines the SecureMessage envelope every fabric exchange
// travels in, and its canonical signing rules.
package message

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/a2afabric/fabric/cjson"
	"github.com/a2afabric/fabric/cry"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
)

// Message types routed by the fabric.
const (
	TypePing              = "ping"
	TypePong              = "pong"
	TypeHandshakeInit     = "handshake_init"
	TypeHandshakeInitAck  = "handshake_init_ack"
	TypeChallengeResponse = "challenge_response"
	TypeSessionEstablish  = "session_established"
	TypeSessionConfirm    = "session_confirm"
	TypeReady             = "ready"
	TypeTaskDelegate      = "task_delegate"
	TypeTaskResponse      = "task_response"
	TypeGossipDigest      = "gossip_digest"
	TypeGossipEntries     = "gossip_entries"
	TypeChunk             = "chunk"
)

// NonceLen is the raw nonce length before base64 encoding.
const NonceLen = 16

// SecureMessage is the wire envelope. The signable view is the same object
// with the signature field omitted, canonically encoded.
type SecureMessage struct {
	Version     string         `json:"version"`
	MsgType     string         `json:"msg_type"`
	SenderID    fabric.AgentID `json:"sender_id"`
	RecipientID fabric.AgentID `json:"recipient_id,omitempty"`
	Payload     map[string]any `json:"payload"`
	Timestamp   UTCTime        `json:"timestamp"`
	Nonce       string         `json:"nonce"`
	Signature   string         `json:"signature,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	SequenceNum uint64         `json:"sequence_num,omitempty"`
}

// UTCTime marshals as RFC3339 in UTC with second precision, which keeps the
// signable bytes identical across runtimes.
type UTCTime time.Time

// MarshalJSON implements json.Marshaler.
func (t UTCTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *UTCTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return errors.Wrap(err, "parse timestamp")
	}
	*t = UTCTime(parsed.UTC())
	return nil
}

// Time returns the underlying time.
func (t UTCTime) Time() time.Time { return time.Time(t) }

// New creates an unsigned message of the given type with a fresh nonce and
// the current timestamp.
func New(msgType string, sender fabric.AgentID, payload map[string]any) (*SecureMessage, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &SecureMessage{
		Version:   fabric.ProtocolVersion,
		MsgType:   msgType,
		SenderID:  sender,
		Payload:   payload,
		Timestamp: UTCTime(time.Now()),
		Nonce:     nonce,
	}, nil
}

// NewNonce returns a fresh random base64 nonce.
func NewNonce() (string, error) {
	raw := make([]byte, NonceLen)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// SigningBytes returns the canonical bytes signatures are computed over.
func (m *SecureMessage) SigningBytes() ([]byte, error) {
	view := *m
	view.Signature = ""
	return cjson.Marshal(&view)
}

// Sign computes and attaches the sender's signature.
func (m *SecureMessage) Sign(kp *cry.KeyPair) error {
	data, err := m.SigningBytes()
	if err != nil {
		return err
	}
	m.Signature = base64.StdEncoding.EncodeToString(kp.Sign(data))
	return nil
}

// Verify checks the attached signature against pub. It returns an
// AuthenticationFailed error on any mismatch or malformed input.
func (m *SecureMessage) Verify(pub ed25519.PublicKey) error {
	if m.Signature == "" {
		return errs.New(errs.AuthenticationFailed, "message not signed")
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return errs.WithKind(errors.Wrap(err, "decode signature"), errs.AuthenticationFailed)
	}
	data, err := m.SigningBytes()
	if err != nil {
		return errs.WithKind(err, errs.InvalidArgument)
	}
	if !cry.Verify(pub, data, sig) {
		return errs.New(errs.AuthenticationFailed, "signature mismatch")
	}
	return nil
}

// Validate checks the envelope's required fields.
func (m *SecureMessage) Validate() error {
	if m.Version == "" || m.MsgType == "" {
		return errs.New(errs.InvalidArgument, "version and msg_type required")
	}
	if err := m.SenderID.Validate(); err != nil {
		return errs.WithKind(err, errs.InvalidArgument)
	}
	raw, err := base64.StdEncoding.DecodeString(m.Nonce)
	if err != nil || len(raw) != NonceLen {
		return errs.New(errs.InvalidArgument, "nonce must be base64 of 16 bytes")
	}
	return nil
}

// Encode marshals the message for transport.
func (m *SecureMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire message.
func Decode(data []byte) (*SecureMessage, error) {
	var m SecureMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.WithKind(errors.Wrap(err, "decode message"), errs.InvalidArgument)
	}
	return &m, nil
}
