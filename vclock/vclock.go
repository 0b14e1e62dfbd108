// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package vclock provides the causal-ordering primitives of the registry:
// vector clocks and hybrid logical clocks.
package vclock

// VC is a vector clock: a per-node monotonic counter map.
type VC map[string]uint64

// Ordering is the result of comparing two vector clocks.
type Ordering int

const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "concurrent"
	}
}

// Copy returns a deep copy.
func (v VC) Copy() VC {
	out := make(VC, len(v))
	for k, n := range v {
		out[k] = n
	}
	return out
}

// Bump increments the counter of node and returns v.
func (v VC) Bump(node string) VC {
	v[node]++
	return v
}

// Max returns the largest counter value, used in gossip digests.
func (v VC) Max() uint64 {
	var max uint64
	for _, n := range v {
		if n > max {
			max = n
		}
	}
	return max
}

// Compare determines the causal relation of v to other.
func (v VC) Compare(other VC) Ordering {
	var less, greater bool
	for node, n := range v {
		o := other[node]
		if n < o {
			less = true
		} else if n > o {
			greater = true
		}
	}
	for node, o := range other {
		if _, ok := v[node]; !ok && o > 0 {
			less = true
		}
	}
	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Merge returns the pointwise max of v and other.
func (v VC) Merge(other VC) VC {
	out := v.Copy()
	for node, o := range other {
		if o > out[node] {
			out[node] = o
		}
	}
	return out
}
