// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/message"
)

func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m := NewManager(Options{})
	m.SetNowFunc(func() time.Time { return now })
	return m, &now
}

func TestCreateAndValidate(t *testing.T) {
	m, now := newTestManager(t)

	key := make([]byte, 32)
	s, err := m.Create("alpha", "beta", key)
	require.NoError(t, err)

	assert.Equal(t, Ready, s.State())
	assert.Equal(t, key, s.Key())
	assert.True(t, m.Validate(s.ID(), "beta"))
	assert.False(t, m.Validate(s.ID(), "gamma"))
	assert.False(t, m.Validate("no-such-id", "beta"))

	// expired after TTL
	*now = now.Add(time.Hour)
	assert.False(t, m.Validate(s.ID(), "beta"))
}

func TestCreateRejectsBadIDs(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Create("", "beta", nil)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
	_, err = m.Create("alpha", "has space", nil)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestStateMonotonic(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.NewPending("alpha", "beta")
	require.NoError(t, err)

	require.NoError(t, s.Advance(InitSent))
	require.NoError(t, s.Advance(AckReceived))
	// backwards is rejected
	err = s.Advance(InitSent)
	assert.Equal(t, errs.HandshakeFailed, errs.KindOf(err))

	// error is absorbing
	require.NoError(t, s.Advance(Error))
	err = s.Advance(Ready)
	assert.Equal(t, errs.HandshakeFailed, errs.KindOf(err))
	assert.Equal(t, Error, s.State())
}

func TestSequenceWindow(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Create("alpha", "beta", make([]byte, 32))
	require.NoError(t, err)
	id := s.ID()

	require.NoError(t, m.ValidateSequence(id, 1))
	require.NoError(t, m.ValidateSequence(id, 2))

	// duplicate
	err = m.ValidateSequence(id, 2)
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))

	// benign reordering within the window
	require.NoError(t, m.ValidateSequence(id, 10))
	require.NoError(t, m.ValidateSequence(id, 5))
	err = m.ValidateSequence(id, 5)
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))

	// exactly W ahead is accepted, W+1 is rejected
	require.NoError(t, m.ValidateSequence(id, 10+64))
	err = m.ValidateSequence(id, 74+65)
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))

	// fell out of the window
	err = m.ValidateSequence(id, 10)
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))
}

func TestNextSequenceMonotone(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Create("alpha", "beta", make([]byte, 32))
	require.NoError(t, err)

	for want := uint64(1); want <= 100; want++ {
		got, err := m.NextSequence(s.ID())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReap(t *testing.T) {
	m, now := newTestManager(t)
	s1, err := m.Create("alpha", "beta", make([]byte, 32))
	require.NoError(t, err)
	_ = s1

	*now = now.Add(30 * time.Minute)
	_, err = m.Create("alpha", "gamma", make([]byte, 32))
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute) // s1 past TTL, s2 not
	assert.Equal(t, 1, m.Reap())
	assert.Equal(t, 1, m.Len())
	// idempotent
	assert.Equal(t, 0, m.Reap())
}

func TestCheckReplayNonce(t *testing.T) {
	m, now := newTestManager(t)

	require.NoError(t, m.CheckReplay("alpha", "nonce-1", *now))
	err := m.CheckReplay("alpha", "nonce-1", *now)
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))

	// same nonce from another sender is a different key
	require.NoError(t, m.CheckReplay("beta", "nonce-1", *now))
}

func TestCheckReplayTimestamp(t *testing.T) {
	m, now := newTestManager(t)

	// exactly at the tolerance boundary: accept
	require.NoError(t, m.CheckReplay("alpha", "n1", now.Add(-30*time.Second)))
	// one second beyond: reject
	err := m.CheckReplay("alpha", "n2", now.Add(-31*time.Second))
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))
	// future beyond tolerance: reject
	err = m.CheckReplay("alpha", "n3", now.Add(31*time.Second))
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))
}

func TestCheckInbound(t *testing.T) {
	m, now := newTestManager(t)
	s, err := m.Create("beta", "alpha", make([]byte, 32))
	require.NoError(t, err)

	msg, err := message.New(message.TypePing, "alpha", map[string]any{"seq": 1})
	require.NoError(t, err)
	msg.Timestamp = message.UTCTime(*now)
	msg.SessionID = s.ID()
	msg.SequenceNum = 1

	require.NoError(t, m.CheckInbound(msg))
	assert.Equal(t, uint64(1), s.HighestRecvSeq())

	// identical bytes replayed
	err = m.CheckInbound(msg)
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))
}
