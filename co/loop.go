// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"context"
	"time"
)

// Loop runs f every interval until ctx is cancelled. The first run happens
// after one interval, not immediately. f must not block for long; long work
// belongs behind the owning manager's channel.
func Loop(ctx context.Context, interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f()
		}
	}
}

// LoopSignal runs f on every tick and additionally whenever trigger fires.
// Used by loops that want both a cadence and an external nudge.
func LoopSignal(ctx context.Context, interval time.Duration, trigger *Signal, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	waiter := trigger.NewWaiter()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f()
		case <-waiter.C():
			f()
		}
	}
}
