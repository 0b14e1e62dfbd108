// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b VC
		want Ordering
	}{
		{VC{}, VC{}, Equal},
		{VC{"n1": 1}, VC{"n1": 1}, Equal},
		{VC{"n1": 1}, VC{"n1": 2}, Before},
		{VC{"n1": 2}, VC{"n1": 1}, After},
		{VC{"n1": 1}, VC{"n2": 1}, Concurrent},
		{VC{"n1": 2, "n2": 1}, VC{"n1": 1, "n2": 2}, Concurrent},
		{VC{"n1": 1, "n2": 1}, VC{"n1": 1}, After},
		{VC{}, VC{"n1": 1}, Before},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Compare(tt.b), "%v vs %v", tt.a, tt.b)
	}
}

func TestMerge(t *testing.T) {
	a := VC{"n1": 2, "n2": 1}
	b := VC{"n1": 1, "n3": 4}

	m := a.Merge(b)
	assert.Equal(t, VC{"n1": 2, "n2": 1, "n3": 4}, m)
	// commutative
	assert.Equal(t, m, b.Merge(a))
	// idempotent
	assert.Equal(t, m, m.Merge(m))
	// associative
	c := VC{"n2": 7}
	assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)))
	// inputs untouched
	assert.Equal(t, VC{"n1": 2, "n2": 1}, a)
}

func TestBumpMonotone(t *testing.T) {
	v := VC{}
	v.Bump("n1").Bump("n1")
	assert.Equal(t, uint64(2), v["n1"])
	assert.Equal(t, After, v.Compare(VC{"n1": 1}))
}

func TestHLCTick(t *testing.T) {
	c := NewClock(time.Second)
	wall := time.UnixMilli(1000)
	c.SetNowFunc(func() time.Time { return wall })

	h1 := c.Tick()
	assert.Equal(t, HLC{WallMS: 1000}, h1)

	// same wall clock: logical increments
	h2 := c.Tick()
	assert.Equal(t, HLC{WallMS: 1000, Logical: 1}, h2)
	assert.Equal(t, 1, h2.Compare(h1))

	// wall advances: logical resets
	wall = time.UnixMilli(2000)
	h3 := c.Tick()
	assert.Equal(t, HLC{WallMS: 2000}, h3)
}

func TestHLCObserve(t *testing.T) {
	c := NewClock(time.Second)
	wall := time.UnixMilli(1000)
	c.SetNowFunc(func() time.Time { return wall })

	// remote ahead of local wall but within skew
	got, err := c.Observe(HLC{WallMS: 1500, Logical: 3})
	require.NoError(t, err)
	assert.Equal(t, HLC{WallMS: 1500, Logical: 4}, got)

	// remote beyond the skew bound is rejected
	_, err = c.Observe(HLC{WallMS: 5000})
	assert.Error(t, err)

	// remote behind: local wall dominates
	wall = time.UnixMilli(2000)
	got, err = c.Observe(HLC{WallMS: 1500})
	require.NoError(t, err)
	assert.Equal(t, HLC{WallMS: 2000}, got)
}
