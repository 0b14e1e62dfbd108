// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vclock

import (
	"sync"
	"time"

	"github.com/a2afabric/fabric/errs"
)

// HLC is a hybrid logical clock value: a physical wall timestamp paired
// with a logical counter for tie-breaking concurrent events.
type HLC struct {
	WallMS  int64  `json:"wall_ms"`
	Logical uint32 `json:"logical"`
}

// Compare returns -1, 0 or 1.
func (h HLC) Compare(other HLC) int {
	switch {
	case h.WallMS < other.WallMS:
		return -1
	case h.WallMS > other.WallMS:
		return 1
	case h.Logical < other.Logical:
		return -1
	case h.Logical > other.Logical:
		return 1
	default:
		return 0
	}
}

// Clock issues HLC values. Safe for concurrent use.
type Clock struct {
	mu        sync.Mutex
	last      HLC
	skewBound time.Duration
	now       func() time.Time
}

// NewClock creates a clock with the given tolerated remote clock skew.
func NewClock(skewBound time.Duration) *Clock {
	return &Clock{skewBound: skewBound, now: time.Now}
}

// SetNowFunc overrides the wall-clock source. Tests only.
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Tick returns the next HLC value for a local event. The wall component
// never goes backwards; the logical counter increments on a wall tie.
func (c *Clock) Tick() HLC {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if wall > c.last.WallMS {
		c.last = HLC{WallMS: wall}
	} else {
		c.last.Logical++
	}
	return c.last
}

// Observe merges a remote HLC value into the clock, returning the value to
// assign to the receive event. A remote wall time further ahead of local
// wall time than the skew bound is rejected.
func (c *Clock) Observe(remote HLC) (HLC, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if remote.WallMS > wall+c.skewBound.Milliseconds() {
		return HLC{}, errs.Errorf(errs.InvalidArgument,
			"remote hlc wall %d exceeds local %d beyond skew bound", remote.WallMS, wall)
	}

	switch {
	case wall > c.last.WallMS && wall > remote.WallMS:
		c.last = HLC{WallMS: wall}
	case remote.WallMS > c.last.WallMS:
		c.last = HLC{WallMS: remote.WallMS, Logical: remote.Logical + 1}
	case remote.WallMS < c.last.WallMS:
		c.last.Logical++
	default:
		logical := c.last.Logical
		if remote.Logical > logical {
			logical = remote.Logical
		}
		c.last = HLC{WallMS: c.last.WallMS, Logical: logical + 1}
	}
	return c.last, nil
}
