// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ratelimit provides per-key token buckets for the public API
// surface and gossip backpressure.
package ratelimit

import (
	"sync"

	leakybucket "github.com/kevinms/leakybucket-go"

	"github.com/a2afabric/fabric/metrics"
)

var metricRejected = metrics.LazyLoadCounter("ratelimit_rejected_count")

// Limiter tracks one token bucket per string key (endpoint or peer id).
// Buckets refill at rate tokens per second up to capacity.
type Limiter struct {
	mu        sync.Mutex
	collector *leakybucket.Collector
}

// New creates a limiter with the given steady rate and burst capacity.
func New(rate float64, burst int64) *Limiter {
	return &Limiter{
		// period-mapped buckets are deleted once drained back to empty
		collector: leakybucket.NewCollector(rate, burst, true),
	}
}

// Allow reports whether one request for key fits in its bucket, consuming
// a token when it does.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN consumes n tokens if they all fit, or none of them.
func (l *Limiter) AllowN(key string, n int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.collector.Remaining(key) < n {
		metricRejected().Add(1)
		return false
	}
	return l.collector.Add(key, n) == n
}

// Remaining returns the free capacity of key's bucket.
func (l *Limiter) Remaining(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collector.Remaining(key)
}
