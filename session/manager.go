// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package session

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pborman/uuid"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/message"
	"github.com/a2afabric/fabric/metrics"
)

var logger = log.WithContext("pkg", "session")

var (
	metricActive  = metrics.LazyLoadGauge("session_active_count")
	metricReplays = metrics.LazyLoadCounter("session_replay_rejected_count")
	metricReaped  = metrics.LazyLoadCounter("session_reaped_count")
)

// Options tunes the manager. Zero values fall back to protocol defaults.
type Options struct {
	TTL                time.Duration
	ReplayWindow       time.Duration
	TimestampTolerance time.Duration
	SequenceWindow     uint64
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.TTL == 0 {
		out.TTL = fabric.SessionTTL
	}
	if out.ReplayWindow == 0 {
		out.ReplayWindow = fabric.ReplayWindow
	}
	if out.TimestampTolerance == 0 {
		out.TimestampTolerance = fabric.TimestampTolerance
	}
	if out.SequenceWindow == 0 {
		out.SequenceWindow = fabric.SequenceWindow
	}
	return out
}

// Manager owns the session table and the seen-nonce cache.
type Manager struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session

	// seen nonces, keyed sender|nonce, evicted after the replay window
	nonces *gocache.Cache

	now func() time.Time
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	o := opts.withDefaults()
	return &Manager{
		opts:     o,
		sessions: make(map[string]*Session),
		nonces:   gocache.New(o.ReplayWindow, o.ReplayWindow/2),
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock. Tests only.
func (m *Manager) SetNowFunc(now func() time.Time) { m.now = now }

// Create inserts a Ready session with the given key and returns it.
func (m *Manager) Create(local, peer fabric.AgentID, key []byte) (*Session, error) {
	s, err := m.NewPending(local, peer)
	if err != nil {
		return nil, err
	}
	s.SetKey(key)
	s.mu.Lock()
	s.state = Ready
	s.mu.Unlock()
	return s, nil
}

// NewPending inserts a session in Initial state, for the handshake layer to
// advance.
func (m *Manager) NewPending(local, peer fabric.AgentID) (*Session, error) {
	if err := local.Validate(); err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	if err := peer.Validate(); err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}

	now := m.now()
	s := &Session{
		id:           uuid.NewRandom().String(),
		localID:      local,
		peerID:       peer,
		state:        Initial,
		createdAt:    now,
		expiresAt:    now.Add(m.opts.TTL),
		lastActivity: now,
		windowSize:   m.opts.SequenceWindow,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	metricActive().Set(int64(m.Len()))
	return s, nil
}

// Adopt registers a session created elsewhere (the responder side of a
// handshake reuses the initiator's session id).
func (m *Manager) Adopt(id string, local, peer fabric.AgentID) (*Session, error) {
	if uuid.Parse(id) == nil {
		return nil, errs.Errorf(errs.InvalidArgument, "session id %q is not a uuid", id)
	}
	now := m.now()
	s := &Session{
		id:           id,
		localID:      local,
		peerID:       peer,
		state:        Initial,
		createdAt:    now,
		expiresAt:    now.Add(m.opts.TTL),
		lastActivity: now,
		windowSize:   m.opts.SequenceWindow,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.sessions[id]; dup {
		return nil, errs.Errorf(errs.PreconditionFailed, "session %s already exists", id)
	}
	m.sessions[id] = s
	return s, nil
}

// Get returns the session, or a SessionNotFound error.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.Errorf(errs.SessionNotFound, "session %s", id)
	}
	return s, nil
}

// Validate reports whether the session exists, is Ready, not expired and
// belongs to peer.
func (m *Manager) Validate(id string, peer fabric.AgentID) bool {
	s, err := m.Get(id)
	if err != nil {
		return false
	}
	if s.PeerID() != peer {
		return false
	}
	if s.State() != Ready {
		return false
	}
	return m.now().Before(s.expiresAt)
}

// ValidateSequence checks and records a received sequence number.
func (m *Manager) ValidateSequence(id string, seq uint64) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.acceptSequence(seq); err != nil {
		metricReplays().Add(1)
		return err
	}
	return nil
}

// NextSequence returns the next send counter for the session.
func (m *Manager) NextSequence(id string) (uint64, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return s.NextSequence(), nil
}

// Touch refreshes the session's last-activity time.
func (m *Manager) Touch(id string) {
	if s, err := m.Get(id); err == nil {
		s.touch(m.now())
	}
}

// Remove drops a session from the table.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	metricActive().Set(int64(m.Len()))
}

// Info is a read-only snapshot of a session, safe to serialize.
type Info struct {
	ID           string         `json:"session_id"`
	LocalID      fabric.AgentID `json:"local_id"`
	PeerID       fabric.AgentID `json:"peer_id"`
	State        string         `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Sessions snapshots the session table.
func (m *Manager) Sessions() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.mu.Lock()
		out = append(out, Info{
			ID:           s.id,
			LocalID:      s.localID,
			PeerID:       s.peerID,
			State:        s.state.String(),
			CreatedAt:    s.createdAt,
			ExpiresAt:    s.expiresAt,
			LastActivity: s.lastActivity,
		})
		s.mu.Unlock()
	}
	return out
}

// Len returns the session count.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap removes expired sessions. Idempotent; run periodically.
func (m *Manager) Reap() int {
	now := m.now()

	m.mu.Lock()
	var reaped int
	for id, s := range m.sessions {
		if !now.Before(s.expiresAt) {
			s.Advance(Expired) //nolint:errcheck // expiry of an errored session keeps it errored
			delete(m.sessions, id)
			reaped++
		}
	}
	m.mu.Unlock()

	if reaped > 0 {
		metricReaped().Add(int64(reaped))
		metricActive().Set(int64(m.Len()))
		logger.Debug("reaped expired sessions", "count", reaped)
	}
	return reaped
}

// Housekeeping reaps expired sessions once a minute until ctx ends.
func (m *Manager) Housekeeping(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

// CheckReplay rejects stale timestamps and reused nonces. The nonce is
// remembered for the replay window on acceptance.
func (m *Manager) CheckReplay(sender fabric.AgentID, nonce string, ts time.Time) error {
	age := m.now().Sub(ts)
	if age > m.opts.TimestampTolerance || -age > m.opts.TimestampTolerance {
		return errs.Errorf(errs.ReplayDetected,
			"timestamp %s outside tolerance", ts.Format(time.RFC3339))
	}
	key := string(sender) + "|" + nonce
	if err := m.nonces.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
		metricReplays().Add(1)
		return errs.Errorf(errs.ReplayDetected, "nonce reused by %s", sender)
	}
	return nil
}

// CheckInbound runs the full replay defense for an inbound message:
// timestamp tolerance, nonce freshness and, when the message carries a
// session, sequence window validation plus activity touch.
func (m *Manager) CheckInbound(msg *message.SecureMessage) error {
	if err := m.CheckReplay(msg.SenderID, msg.Nonce, msg.Timestamp.Time()); err != nil {
		return err
	}
	if msg.SessionID != "" && msg.SequenceNum > 0 {
		if err := m.ValidateSequence(msg.SessionID, msg.SequenceNum); err != nil {
			return err
		}
		m.Touch(msg.SessionID)
	}
	return nil
}
