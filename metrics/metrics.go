// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package metrics is a facade over a metrics backend. It defaults to a noop
// implementation; the command layer switches it to prometheus when enabled.
package metrics

import (
	"net/http"
	"sync"
)

var backend Backend = noop{}

// Backend is implemented by metrics services.
type Backend interface {
	GetOrCreateCountMeter(name string) CountMeter
	GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter
	GetOrCreateGaugeMeter(name string) GaugeMeter
	GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter
	GetOrCreateHandler() http.Handler
}

// CountMeter is a monotonically increasing counter.
type CountMeter interface {
	Add(int64)
}

// CountVecMeter is a counter with labels.
type CountVecMeter interface {
	AddWithLabel(int64, map[string]string)
}

// GaugeMeter is a value that can go up and down.
type GaugeMeter interface {
	Add(int64)
	Set(int64)
}

// HistogramMeter aggregates reported measurements into buckets.
type HistogramMeter interface {
	Observe(int64)
}

// Counter returns the named counter.
func Counter(name string) CountMeter { return backend.GetOrCreateCountMeter(name) }

// CounterVec returns the named labeled counter.
func CounterVec(name string, labels []string) CountVecMeter {
	return backend.GetOrCreateCountVecMeter(name, labels)
}

// Gauge returns the named gauge.
func Gauge(name string) GaugeMeter { return backend.GetOrCreateGaugeMeter(name) }

// Histogram returns the named histogram.
func Histogram(name string, buckets []int64) HistogramMeter {
	return backend.GetOrCreateHistogramMeter(name, buckets)
}

// HTTPHandler returns the scrape handler, or nil for the noop backend.
func HTTPHandler() http.Handler { return backend.GetOrCreateHandler() }

// LazyLoad defers the instantiation of a metric while allowing its
// definition. More clearly:
// - it allows metrics to be defined and used package wide (using var)
// - it avoids metrics definition to determine the singleton to use (noop vs prometheus)
func LazyLoad[T any](f func() T) func() T {
	var result T
	var once sync.Once
	return func() T {
		once.Do(func() {
			result = f()
		})
		return result
	}
}

// LazyLoadCounter defers binding of the named counter.
func LazyLoadCounter(name string) func() CountMeter {
	return LazyLoad(func() CountMeter {
		return Counter(name)
	})
}

// LazyLoadCounterVec defers binding of the named labeled counter.
func LazyLoadCounterVec(name string, labels []string) func() CountVecMeter {
	return LazyLoad(func() CountVecMeter {
		return CounterVec(name, labels)
	})
}

// LazyLoadGauge defers binding of the named gauge.
func LazyLoadGauge(name string) func() GaugeMeter {
	return LazyLoad(func() GaugeMeter {
		return Gauge(name)
	})
}

// LazyLoadHistogram defers binding of the named histogram.
func LazyLoadHistogram(name string, buckets []int64) func() HistogramMeter {
	return LazyLoad(func() HistogramMeter {
		return Histogram(name, buckets)
	})
}

// Standard millisecond buckets for request-ish latencies.
var Bucket10s = []int64{0, 500, 1000, 2000, 3000, 4000, 5000, 7500, 10_000}

type noop struct{}

type noopMeter struct{}

func (noopMeter) Add(int64)                            {}
func (noopMeter) Set(int64)                            {}
func (noopMeter) Observe(int64)                        {}
func (noopMeter) AddWithLabel(int64, map[string]string) {}

func (noop) GetOrCreateCountMeter(string) CountMeter                 { return noopMeter{} }
func (noop) GetOrCreateCountVecMeter(string, []string) CountVecMeter { return noopMeter{} }
func (noop) GetOrCreateGaugeMeter(string) GaugeMeter                 { return noopMeter{} }
func (noop) GetOrCreateHistogramMeter(string, []int64) HistogramMeter {
	return noopMeter{}
}
func (noop) GetOrCreateHandler() http.Handler { return nil }
