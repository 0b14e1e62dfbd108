// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package session manages authenticated channels between agents: their
// lifecycle, sequence tracking and replay defense.
package session

import (
	"sync"
	"time"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
)

// State of a session. Transitions are monotonic except the absorbing Error.
type State int

const (
	Initial State = iota
	InitSent
	AckReceived
	ChallengeSent
	Established
	Confirmed
	Ready
	Error
	Expired
)

var stateNames = [...]string{
	"INITIAL", "INIT_SENT", "ACK_RECEIVED", "CHALLENGE_SENT",
	"ESTABLISHED", "CONFIRMED", "READY", "ERROR", "EXPIRED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Session is an authenticated channel between two peers.
type Session struct {
	mu sync.Mutex

	id      string
	localID fabric.AgentID
	peerID  fabric.AgentID
	state   State
	key     []byte

	createdAt    time.Time
	expiresAt    time.Time
	lastActivity time.Time

	nextSendSeq    uint64
	highestRecvSeq uint64
	recvWindow     uint64 // bitmask over the last windowSize sequences
	windowSize     uint64
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// LocalID returns the owning agent.
func (s *Session) LocalID() fabric.AgentID { return s.localID }

// PeerID returns the remote agent.
func (s *Session) PeerID() fabric.AgentID { return s.peerID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Key returns the session key, nil until established.
func (s *Session) Key() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// ExpiresAt returns the expiry instant.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Advance moves the session to the given state. Transitions must move
// forward; Error is reachable from anywhere and absorbing.
func (s *Session) Advance(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Error {
		return errs.Errorf(errs.HandshakeFailed, "session %s in error state", s.id)
	}
	if to == Error || to == Expired {
		s.state = to
		return nil
	}
	if to <= s.state {
		return errs.Errorf(errs.HandshakeFailed,
			"session %s cannot go %v -> %v", s.id, s.state, to)
	}
	s.state = to
	return nil
}

// SetKey installs the derived session key. A session cannot reach Ready
// without one.
func (s *Session) SetKey(key []byte) {
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
}

// NextSequence returns the strictly increasing send counter.
func (s *Session) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSendSeq++
	return s.nextSendSeq
}

// HighestRecvSeq returns the highest accepted receive sequence.
func (s *Session) HighestRecvSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highestRecvSeq
}

// acceptSequence validates and records a received sequence number against
// the sliding window. Duplicates and out-of-window values are rejected.
func (s *Session) acceptSequence(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq == 0 {
		return errs.New(errs.InvalidArgument, "sequence number must be positive")
	}

	switch {
	case seq > s.highestRecvSeq:
		ahead := seq - s.highestRecvSeq
		if ahead > s.windowSize {
			return errs.Errorf(errs.ReplayDetected,
				"sequence %d jumps beyond window (highest %d)", seq, s.highestRecvSeq)
		}
		s.recvWindow = (s.recvWindow << ahead) | 1
		s.highestRecvSeq = seq
	default:
		behind := s.highestRecvSeq - seq
		if behind >= s.windowSize {
			return errs.Errorf(errs.ReplayDetected,
				"sequence %d fell out of window (highest %d)", seq, s.highestRecvSeq)
		}
		bit := uint64(1) << behind
		if s.recvWindow&bit != 0 {
			return errs.Errorf(errs.ReplayDetected, "sequence %d already accepted", seq)
		}
		s.recvWindow |= bit
	}
	return nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}
