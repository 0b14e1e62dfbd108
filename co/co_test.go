// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoes(t *testing.T) {
	var g Goes
	var n int32
	for i := 0; i < 10; i++ {
		g.Go(func() { atomic.AddInt32(&n, 1) })
	}
	<-g.Done()
	assert.EqualValues(t, 10, atomic.LoadInt32(&n))
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		Loop(ctx, time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })
	}()

	for atomic.LoadInt32(&ticks) < 3 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestSignalWakesOneWaiter(t *testing.T) {
	var sig Signal
	w := sig.NewWaiter()

	sig.Signal()
	sig.Signal() // wakeups never accumulate beyond one

	select {
	case <-w.C():
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
	select {
	case <-w.C():
		t.Fatal("second wakeup should not be pending")
	default:
	}
}

func TestSignalBroadcast(t *testing.T) {
	var sig Signal
	w1 := sig.NewWaiter()
	w2 := sig.NewWaiter()
	sig.Broadcast()

	for _, w := range []Waiter{w1, w2} {
		select {
		case <-w.C():
		case <-time.After(time.Second):
			t.Fatal("waiter not woken")
		}
	}
}
