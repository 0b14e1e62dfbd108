// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import "sync"

// Waiter hands out the channel a waiting goroutine selects on.
type Waiter interface {
	C() <-chan bool
}

// Signal is a channel-backed rendezvous point: goroutines announce an
// event with Signal or Broadcast, waiters select on the channel their
// Waiter hands out. The zero value is ready to use.
type Signal struct {
	mu sync.Mutex
	ch chan bool
}

// channel lazily creates the current wake channel. Must hold s.mu.
func (s *Signal) channel() chan bool {
	if s.ch == nil {
		s.ch = make(chan bool, 1)
	}
	return s.ch
}

// Signal wakes one waiter, if any is blocked. Signals never accumulate
// beyond one pending wakeup.
func (s *Signal) Signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.channel() <- true:
	default:
	}
}

// Broadcast wakes every current waiter by closing the wake channel and
// replacing it.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.channel())
	s.ch = make(chan bool, 1)
}

// NewWaiter returns a Waiter that keeps tracking the signal across
// broadcasts: each C call picks up the latest wake channel.
func (s *Signal) NewWaiter() Waiter {
	s.mu.Lock()
	ref := s.channel()
	s.mu.Unlock()

	return waiterFunc(func() <-chan bool {
		cur := ref
		s.mu.Lock()
		ref = s.channel()
		s.mu.Unlock()
		return cur
	})
}

type waiterFunc func() <-chan bool

func (w waiterFunc) C() <-chan bool {
	return w()
}
