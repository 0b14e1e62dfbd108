// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package handshake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2afabric/fabric/cry"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/message"
	"github.com/a2afabric/fabric/session"
)

type testPeer struct {
	id       fabric.AgentID
	keys     *cry.KeyPair
	sessions *session.Manager
	engine   *Engine
	inbox    chan *message.SecureMessage
}

// newTestPair wires two engines through buffered channels with one pump
// goroutine per side, like a transport would.
func newTestPair(t *testing.T, timeout time.Duration) (*testPeer, *testPeer, func()) {
	t.Helper()

	mk := func(id fabric.AgentID) *testPeer {
		keys, err := cry.GenerateKeyPair()
		require.NoError(t, err)
		return &testPeer{
			id:       id,
			keys:     keys,
			sessions: session.NewManager(session.Options{}),
			inbox:    make(chan *message.SecureMessage, 16),
		}
	}
	alpha, beta := mk("alpha"), mk("beta")

	alpha.engine = New(alpha.id, alpha.keys, alpha.sessions, func(_ fabric.AgentID, msg *message.SecureMessage) error {
		beta.inbox <- msg
		return nil
	}, timeout)
	beta.engine = New(beta.id, beta.keys, beta.sessions, func(_ fabric.AgentID, msg *message.SecureMessage) error {
		alpha.inbox <- msg
		return nil
	}, timeout)

	stop := make(chan struct{})
	pump := func(p *testPeer) {
		for {
			select {
			case <-stop:
				return
			case msg := <-p.inbox:
				p.engine.Handle(msg) //nolint:errcheck // failures surface via flow state
			}
		}
	}
	go pump(alpha)
	go pump(beta)

	return alpha, beta, func() { close(stop) }
}

func (p *testPeer) identity() *fabric.Identity {
	return &fabric.Identity{AgentID: p.id, PublicKey: p.keys.Public()}
}

func TestHandshakeHappyPath(t *testing.T) {
	alpha, beta, stop := newTestPair(t, 5*time.Second)
	defer stop()

	sess, err := alpha.engine.Initiate(context.Background(), beta.identity())
	require.NoError(t, err)

	assert.Equal(t, session.Ready, sess.State())
	require.NotNil(t, sess.Key())

	betaSess, err := beta.sessions.Get(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, session.Ready, betaSess.State())

	// both peers derived the same session key
	assert.Equal(t, sess.Key(), betaSess.Key())

	// the derived key encrypts/decrypts across sides
	sealed, err := cry.Seal(sess.Key(), []byte("ping"), nil)
	require.NoError(t, err)
	plain, err := cry.Open(betaSess.Key(), sealed, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), plain)
}

func TestHandshakeFreshKeysPerSession(t *testing.T) {
	alpha, beta, stop := newTestPair(t, 5*time.Second)
	defer stop()

	s1, err := alpha.engine.Initiate(context.Background(), beta.identity())
	require.NoError(t, err)
	s2, err := alpha.engine.Initiate(context.Background(), beta.identity())
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.NotEqual(t, s1.Key(), s2.Key())
}

func TestHandshakeWrongResponderKey(t *testing.T) {
	alpha, _, stop := newTestPair(t, 5*time.Second)
	defer stop()

	// dial beta's id but with an unrelated public key: the ack must fail
	// authentication on the initiator side
	bogus, err := cry.GenerateKeyPair()
	require.NoError(t, err)

	_, err = alpha.engine.Initiate(context.Background(),
		&fabric.Identity{AgentID: "beta", PublicKey: bogus.Public()})
	require.Error(t, err)
	assert.Equal(t, errs.AuthenticationFailed, errs.KindOf(err))
}

func TestHandshakeTimeout(t *testing.T) {
	alpha, beta, stop := newTestPair(t, 50*time.Millisecond)
	defer stop()

	// swallow everything beta would receive
	for i := 0; i < cap(beta.inbox); i++ {
		select {
		case <-beta.inbox:
		default:
		}
	}
	alpha.engine.send = func(fabric.AgentID, *message.SecureMessage) error { return nil }

	start := time.Now()
	_, err := alpha.engine.Initiate(context.Background(), beta.identity())
	require.Error(t, err)
	assert.Equal(t, errs.HandshakeFailed, errs.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandshakeCancelled(t *testing.T) {
	alpha, beta, stop := newTestPair(t, 5*time.Second)
	defer stop()

	alpha.engine.send = func(fabric.AgentID, *message.SecureMessage) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := alpha.engine.Initiate(ctx, beta.identity())
	require.Error(t, err)
	assert.Equal(t, errs.Cancelled, errs.KindOf(err))
}

func TestHandleRejectsUnknown(t *testing.T) {
	alpha, _, stop := newTestPair(t, time.Second)
	defer stop()

	msg, err := message.New("bogus_step", "beta", nil)
	require.NoError(t, err)
	msg.SessionID = "11111111-2222-3333-4444-555555555555"
	assert.Error(t, alpha.engine.Handle(msg))

	msg2, err := message.New(message.TypeReady, "beta", nil)
	require.NoError(t, err)
	msg2.SessionID = "11111111-2222-3333-4444-555555555555"
	err = alpha.engine.Handle(msg2)
	assert.Equal(t, errs.SessionNotFound, errs.KindOf(err))
}

func TestVersionMismatch(t *testing.T) {
	alpha, beta, stop := newTestPair(t, time.Second)
	defer stop()

	keys, err := cry.GenerateKeyPair()
	require.NoError(t, err)
	msg, err := message.New(message.TypeHandshakeInit, "mallory", map[string]any{})
	require.NoError(t, err)
	msg.Version = "0.9"
	msg.SessionID = "11111111-2222-3333-4444-555555555555"
	putKey(msg.Payload, fieldEdPub, keys.Public())
	require.NoError(t, msg.Sign(keys))

	err = beta.engine.Handle(msg)
	assert.Equal(t, errs.HandshakeFailed, errs.KindOf(err))
	_ = alpha
}
