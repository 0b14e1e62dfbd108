// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package handshake implements the six-step key agreement that establishes
// an authenticated session between two agents:
//
//	A                                B
//	handshake_init          ----->
//	                        <-----  handshake_init_ack (challenge)
//	challenge_response      ----->
//	                        <-----  session_established (confirmation)
//	session_confirm         ----->
//	                        <-----  ready
//
// Each message is signed over its canonical JSON. The session key is
// X25519 ECDH fed through HKDF-SHA256, salted with a hash of the session
// id and all four public keys.
package handshake

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/a2afabric/fabric/cry"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/message"
	"github.com/a2afabric/fabric/metrics"
	"github.com/a2afabric/fabric/session"
)

var logger = log.WithContext("pkg", "handshake")

var (
	metricStarted   = metrics.LazyLoadCounter("handshake_started_count")
	metricCompleted = metrics.LazyLoadCounter("handshake_completed_count")
	metricFailed    = metrics.LazyLoadCounter("handshake_failed_count")
)

const challengeLen = 32

// SendFunc delivers a handshake message to a peer agent.
type SendFunc func(peer fabric.AgentID, msg *message.SecureMessage) error

// Engine drives handshakes for one agent, both as initiator and responder.
type Engine struct {
	id       fabric.AgentID
	keys     *cry.KeyPair
	sessions *session.Manager
	send     SendFunc
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]*flow
}

// flow is the per-session handshake state. All steps of one session run
// under its mutex.
type flow struct {
	mu        sync.Mutex
	sess      *session.Session
	initiator bool
	eph       *cry.EphemeralKeyPair
	peerEd    ed25519.PublicKey
	peerX     []byte
	challenge []byte
	key       []byte
	timer     *time.Timer
	done      chan error
	finished  bool
}

// New creates an engine. timeout 0 means the protocol default.
func New(id fabric.AgentID, keys *cry.KeyPair, sessions *session.Manager, send SendFunc, timeout time.Duration) *Engine {
	if timeout == 0 {
		timeout = fabric.HandshakeTimeout
	}
	return &Engine{
		id:       id,
		keys:     keys,
		sessions: sessions,
		send:     send,
		timeout:  timeout,
		pending:  make(map[string]*flow),
	}
}

// Initiate runs a handshake with peer, whose identity (and Ed25519 key)
// must already be known, and blocks until the session is Ready, the
// handshake fails, the timeout forces expiry or ctx is cancelled.
func (e *Engine) Initiate(ctx context.Context, peer *fabric.Identity) (*session.Session, error) {
	if len(peer.PublicKey) != ed25519.PublicKeySize {
		return nil, errs.Errorf(errs.InvalidArgument, "peer %s has no ed25519 key", peer.AgentID)
	}

	sess, err := e.sessions.NewPending(e.id, peer.AgentID)
	if err != nil {
		return nil, err
	}
	eph, err := cry.GenerateEphemeral()
	if err != nil {
		return nil, errs.WithKind(err, errs.Internal)
	}

	f := &flow{
		sess:      sess,
		initiator: true,
		eph:       eph,
		peerEd:    ed25519.PublicKey(peer.PublicKey),
		done:      make(chan error, 1),
	}
	e.track(f)
	metricStarted().Add(1)

	init, err := e.newMsg(message.TypeHandshakeInit, peer.AgentID, sess.ID(), map[string]any{})
	if err != nil {
		return nil, e.fail(f, err)
	}
	putKey(init.Payload, fieldEdPub, e.keys.Public())
	putKey(init.Payload, fieldXPub, eph.Pub[:])
	if err := init.Sign(e.keys); err != nil {
		return nil, e.fail(f, errs.WithKind(err, errs.Internal))
	}
	if err := sess.Advance(session.InitSent); err != nil {
		return nil, e.fail(f, err)
	}
	if err := e.send(peer.AgentID, init); err != nil {
		return nil, e.fail(f, errs.WithKind(err, errs.Unavailable))
	}

	select {
	case err := <-f.done:
		if err != nil {
			return nil, err
		}
		return sess, nil
	case <-ctx.Done():
		return nil, e.fail(f, errs.WithKind(ctx.Err(), errs.Cancelled))
	}
}

// Handle processes an inbound handshake message. It returns an error for
// the caller to surface; the flow is already moved to its terminal state.
func (e *Engine) Handle(msg *message.SecureMessage) error {
	if msg.SessionID == "" {
		return errs.New(errs.InvalidArgument, "handshake message without session id")
	}

	switch msg.MsgType {
	case message.TypeHandshakeInit:
		return e.onInit(msg)
	case message.TypeHandshakeInitAck:
		return e.withFlow(msg, e.onInitAck)
	case message.TypeChallengeResponse:
		return e.withFlow(msg, e.onChallengeResponse)
	case message.TypeSessionEstablish:
		return e.withFlow(msg, e.onEstablished)
	case message.TypeSessionConfirm:
		return e.withFlow(msg, e.onConfirm)
	case message.TypeReady:
		return e.withFlow(msg, e.onReady)
	default:
		return errs.Errorf(errs.InvalidArgument, "unknown handshake message %q", msg.MsgType)
	}
}

// Handles reports whether msgType belongs to the handshake protocol.
func Handles(msgType string) bool {
	switch msgType {
	case message.TypeHandshakeInit, message.TypeHandshakeInitAck,
		message.TypeChallengeResponse, message.TypeSessionEstablish,
		message.TypeSessionConfirm, message.TypeReady:
		return true
	}
	return false
}

func (e *Engine) track(f *flow) {
	e.mu.Lock()
	e.pending[f.sess.ID()] = f
	e.mu.Unlock()

	f.timer = time.AfterFunc(e.timeout, func() {
		e.expire(f)
	})
}

func (e *Engine) lookup(id string) *flow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending[id]
}

func (e *Engine) untrack(f *flow) {
	e.mu.Lock()
	delete(e.pending, f.sess.ID())
	e.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
}

// fail moves the session to the absorbing error state and wakes the waiter.
// Callers must not hold f.mu.
func (e *Engine) fail(f *flow, err error) error {
	f.mu.Lock()
	already := f.finished
	f.finished = true
	f.mu.Unlock()
	if already {
		return err
	}

	e.untrack(f)
	f.sess.Advance(session.Error) //nolint:errcheck // error state is always reachable
	e.sessions.Remove(f.sess.ID())
	if f.eph != nil {
		f.eph.Destroy()
	}
	metricFailed().Add(1)
	logger.Warn("handshake failed", "session", f.sess.ID(), "peer", f.sess.PeerID(), "err", err)

	select {
	case f.done <- err:
	default:
	}
	return err
}

func (e *Engine) expire(f *flow) {
	f.mu.Lock()
	already := f.finished
	f.finished = true
	f.mu.Unlock()
	if already {
		return
	}

	e.untrack(f)
	f.sess.Advance(session.Expired) //nolint:errcheck
	e.sessions.Remove(f.sess.ID())
	metricFailed().Add(1)
	logger.Warn("handshake timed out", "session", f.sess.ID(), "peer", f.sess.PeerID())

	select {
	case f.done <- errs.Errorf(errs.HandshakeFailed, "handshake timed out after %s", e.timeout):
	default:
	}
}

func (e *Engine) complete(f *flow) {
	f.mu.Lock()
	already := f.finished
	f.finished = true
	f.mu.Unlock()
	if already {
		return
	}

	e.untrack(f)
	f.eph.Destroy()
	metricCompleted().Add(1)
	logger.Debug("handshake complete", "session", f.sess.ID(), "peer", f.sess.PeerID())

	select {
	case f.done <- nil:
	default:
	}
}

func (e *Engine) withFlow(msg *message.SecureMessage, fn func(*flow, *message.SecureMessage) error) error {
	f := e.lookup(msg.SessionID)
	if f == nil {
		return errs.Errorf(errs.SessionNotFound, "no pending handshake for session %s", msg.SessionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		return errs.Errorf(errs.HandshakeFailed, "handshake for session %s already finished", msg.SessionID)
	}
	if err := fn(f, msg); err != nil {
		// fail needs the lock released
		f.mu.Unlock()
		e.fail(f, err)
		f.mu.Lock()
		return err
	}
	return nil
}

func (e *Engine) newMsg(msgType string, to fabric.AgentID, sessionID string, payload map[string]any) (*message.SecureMessage, error) {
	m, err := message.New(msgType, e.id, payload)
	if err != nil {
		return nil, errs.WithKind(err, errs.Internal)
	}
	m.RecipientID = to
	m.SessionID = sessionID
	return m, nil
}

func (e *Engine) signAndSend(f *flow, msg *message.SecureMessage) error {
	if err := msg.Sign(e.keys); err != nil {
		return errs.WithKind(err, errs.Internal)
	}
	if err := e.send(f.sess.PeerID(), msg); err != nil {
		return errs.WithKind(err, errs.Unavailable)
	}
	return nil
}

func checkVersion(msg *message.SecureMessage) error {
	if msg.Version != fabric.ProtocolVersion {
		return errs.Errorf(errs.HandshakeFailed,
			"protocol version %q, want %q", msg.Version, fabric.ProtocolVersion)
	}
	return nil
}

// --- responder side ---

// onInit handles step 1 and answers with step 2. The initiator's Ed25519
// key is learned from the init payload itself and pinned for the rest of
// the handshake.
func (e *Engine) onInit(msg *message.SecureMessage) error {
	if err := checkVersion(msg); err != nil {
		return err
	}
	peerEd, err := getEdKey(msg)
	if err != nil {
		return err
	}
	if err := msg.Verify(peerEd); err != nil {
		return err
	}
	peerX, err := getXKey(msg)
	if err != nil {
		return err
	}

	sess, err := e.sessions.Adopt(msg.SessionID, e.id, msg.SenderID)
	if err != nil {
		return err
	}
	eph, err := cry.GenerateEphemeral()
	if err != nil {
		return errs.WithKind(err, errs.Internal)
	}
	challenge := make([]byte, challengeLen)
	if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
		return errs.WithKind(err, errs.Internal)
	}

	f := &flow{
		sess:      sess,
		eph:       eph,
		peerEd:    peerEd,
		peerX:     peerX,
		challenge: challenge,
		done:      make(chan error, 1),
	}
	e.track(f)
	metricStarted().Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := sess.Advance(session.InitSent); err != nil {
		f.mu.Unlock()
		e.fail(f, err)
		f.mu.Lock()
		return err
	}

	ack, err := e.newMsg(message.TypeHandshakeInitAck, msg.SenderID, sess.ID(), map[string]any{})
	if err != nil {
		return err
	}
	putKey(ack.Payload, fieldEdPub, e.keys.Public())
	putKey(ack.Payload, fieldXPub, eph.Pub[:])
	putKey(ack.Payload, fieldChallenge, challenge)

	if err := sess.Advance(session.ChallengeSent); err != nil {
		f.mu.Unlock()
		e.fail(f, err)
		f.mu.Lock()
		return err
	}
	if err := e.signAndSend(f, ack); err != nil {
		f.mu.Unlock()
		e.fail(f, err)
		f.mu.Lock()
		return err
	}
	return nil
}

// onChallengeResponse handles step 3, derives the session key and answers
// with step 4.
func (e *Engine) onChallengeResponse(f *flow, msg *message.SecureMessage) error {
	if f.initiator {
		return errs.New(errs.HandshakeFailed, "challenge_response received by initiator")
	}
	if err := msg.Verify(f.peerEd); err != nil {
		return err
	}
	response, err := getBytes(msg, fieldResponse)
	if err != nil {
		return err
	}
	// the response is a detached signature over the raw challenge bytes
	if !cry.Verify(f.peerEd, f.challenge, response) {
		return errs.New(errs.AuthenticationFailed, "challenge response signature invalid")
	}

	key, err := e.deriveKey(f)
	if err != nil {
		return err
	}
	f.key = key
	f.sess.SetKey(key)
	if err := f.sess.Advance(session.Established); err != nil {
		return err
	}

	est, err := e.newMsg(message.TypeSessionEstablish, f.sess.PeerID(), f.sess.ID(), map[string]any{})
	if err != nil {
		return err
	}
	putKey(est.Payload, fieldConfirm, confirmToken(key, f.sess.ID(), "responder"))
	return e.signAndSend(f, est)
}

// onConfirm handles step 5 and answers with the final ready.
func (e *Engine) onConfirm(f *flow, msg *message.SecureMessage) error {
	if f.initiator {
		return errs.New(errs.HandshakeFailed, "session_confirm received by initiator")
	}
	if err := msg.Verify(f.peerEd); err != nil {
		return err
	}
	token, err := getBytes(msg, fieldConfirm)
	if err != nil {
		return err
	}
	if !cry.MACEqual(token, confirmToken(f.key, f.sess.ID(), "initiator")) {
		return errs.New(errs.AuthenticationFailed, "initiator confirmation token mismatch")
	}
	if err := f.sess.Advance(session.Confirmed); err != nil {
		return err
	}

	ready, err := e.newMsg(message.TypeReady, f.sess.PeerID(), f.sess.ID(), map[string]any{})
	if err != nil {
		return err
	}
	if err := e.signAndSend(f, ready); err != nil {
		return err
	}
	if err := f.sess.Advance(session.Ready); err != nil {
		return err
	}
	f.mu.Unlock()
	e.complete(f)
	f.mu.Lock()
	return nil
}

// --- initiator side ---

// onInitAck handles step 2 and answers with step 3.
func (e *Engine) onInitAck(f *flow, msg *message.SecureMessage) error {
	if !f.initiator {
		return errs.New(errs.HandshakeFailed, "handshake_init_ack received by responder")
	}
	if err := checkVersion(msg); err != nil {
		return err
	}

	// the responder's key in the ack must match the identity we dialed
	ackEd, err := getEdKey(msg)
	if err != nil {
		return err
	}
	if !ackEd.Equal(f.peerEd) {
		return errs.New(errs.AuthenticationFailed, "responder key mismatch")
	}
	if err := msg.Verify(f.peerEd); err != nil {
		return err
	}
	peerX, err := getXKey(msg)
	if err != nil {
		return err
	}
	challenge, err := getBytes(msg, fieldChallenge)
	if err != nil {
		return err
	}
	if len(challenge) != challengeLen {
		return errs.Errorf(errs.HandshakeFailed, "challenge length %d", len(challenge))
	}
	f.peerX = peerX

	if err := f.sess.Advance(session.AckReceived); err != nil {
		return err
	}

	resp, err := e.newMsg(message.TypeChallengeResponse, f.sess.PeerID(), f.sess.ID(), map[string]any{
		fieldResponse: base64.StdEncoding.EncodeToString(e.keys.Sign(challenge)),
	})
	if err != nil {
		return err
	}
	if err := f.sess.Advance(session.ChallengeSent); err != nil {
		return err
	}
	return e.signAndSend(f, resp)
}

// onEstablished handles step 4, derives the key and answers with step 5.
func (e *Engine) onEstablished(f *flow, msg *message.SecureMessage) error {
	if !f.initiator {
		return errs.New(errs.HandshakeFailed, "session_established received by responder")
	}
	if err := msg.Verify(f.peerEd); err != nil {
		return err
	}

	key, err := e.deriveKey(f)
	if err != nil {
		return err
	}
	token, err := getBytes(msg, fieldConfirm)
	if err != nil {
		return err
	}
	if !cry.MACEqual(token, confirmToken(key, f.sess.ID(), "responder")) {
		return errs.New(errs.AuthenticationFailed, "responder confirmation token mismatch")
	}
	f.key = key
	f.sess.SetKey(key)
	if err := f.sess.Advance(session.Established); err != nil {
		return err
	}

	confirm, err := e.newMsg(message.TypeSessionConfirm, f.sess.PeerID(), f.sess.ID(), map[string]any{})
	if err != nil {
		return err
	}
	putKey(confirm.Payload, fieldConfirm, confirmToken(key, f.sess.ID(), "initiator"))
	if err := f.sess.Advance(session.Confirmed); err != nil {
		return err
	}
	return e.signAndSend(f, confirm)
}

// onReady handles the final step 6.
func (e *Engine) onReady(f *flow, msg *message.SecureMessage) error {
	if !f.initiator {
		return errs.New(errs.HandshakeFailed, "ready received by responder")
	}
	if err := msg.Verify(f.peerEd); err != nil {
		return err
	}
	if err := f.sess.Advance(session.Ready); err != nil {
		return err
	}
	f.mu.Unlock()
	e.complete(f)
	f.mu.Lock()
	return nil
}

// deriveKey computes the session key. The salt commits to the session id
// and all four public keys, initiator's first.
func (e *Engine) deriveKey(f *flow) ([]byte, error) {
	var initX, respX, initEd, respEd []byte
	if f.initiator {
		initX, respX = f.eph.Pub[:], f.peerX
		initEd, respEd = e.keys.Public(), f.peerEd
	} else {
		initX, respX = f.peerX, f.eph.Pub[:]
		initEd, respEd = f.peerEd, e.keys.Public()
	}
	salt := cry.HandshakeSalt(f.sess.ID(), initX, respX, initEd, respEd)
	key, err := f.eph.DeriveSessionKey(f.peerX, salt, fabric.SessionKeyInfo)
	if err != nil {
		return nil, errs.WithKind(errors.Wrap(err, "derive session key"), errs.HandshakeFailed)
	}
	return key, nil
}

func confirmToken(key []byte, sessionID, role string) []byte {
	return cry.MAC(key, []byte(sessionID+"|"+role))
}
