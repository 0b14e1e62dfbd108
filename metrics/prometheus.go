// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/a2afabric/fabric/log"
)

const namespace = "fabric_metrics"

var logger = log.WithContext("pkg", "metrics")

// InitializePrometheusMetrics switches the default backend to prometheus.
// Calling it twice is a no-op.
func InitializePrometheusMetrics() {
	if _, ok := backend.(*prometheusBackend); !ok {
		backend = &prometheusBackend{}
	}
}

type prometheusBackend struct {
	counters    sync.Map
	counterVecs sync.Map
	gauges      sync.Map
	histograms  sync.Map
}

func (p *prometheusBackend) GetOrCreateCountMeter(name string) CountMeter {
	if m, ok := p.counters.Load(name); ok {
		return m.(CountMeter)
	}
	meter := p.newCountMeter(name)
	p.counters.Store(name, meter)
	return meter
}

func (p *prometheusBackend) GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter {
	if m, ok := p.counterVecs.Load(name); ok {
		return m.(CountVecMeter)
	}
	meter := p.newCountVecMeter(name, labels)
	p.counterVecs.Store(name, meter)
	return meter
}

func (p *prometheusBackend) GetOrCreateGaugeMeter(name string) GaugeMeter {
	if m, ok := p.gauges.Load(name); ok {
		return m.(GaugeMeter)
	}
	meter := p.newGaugeMeter(name)
	p.gauges.Store(name, meter)
	return meter
}

func (p *prometheusBackend) GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter {
	if m, ok := p.histograms.Load(name); ok {
		return m.(HistogramMeter)
	}
	meter := p.newHistogramMeter(name, buckets)
	p.histograms.Store(name, meter)
	return meter
}

func (p *prometheusBackend) GetOrCreateHandler() http.Handler {
	return promhttp.Handler()
}

type promCountMeter struct {
	counter prometheus.Counter
}

func (c *promCountMeter) Add(i int64) { c.counter.Add(float64(i)) }

func (p *prometheusBackend) newCountMeter(name string) CountMeter {
	meter := &promCountMeter{
		counter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		}),
	}
	if err := prometheus.Register(meter.counter); err != nil {
		logger.Warn("unable to register counter", "name", name, "err", err)
	}
	return meter
}

type promCountVecMeter struct {
	counter *prometheus.CounterVec
}

func (c *promCountVecMeter) AddWithLabel(i int64, labels map[string]string) {
	c.counter.With(labels).Add(float64(i))
}

func (p *prometheusBackend) newCountVecMeter(name string, labels []string) CountVecMeter {
	meter := &promCountVecMeter{
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
		}, labels),
	}
	if err := prometheus.Register(meter.counter); err != nil {
		logger.Warn("unable to register counter vec", "name", name, "err", err)
	}
	return meter
}

type promGaugeMeter struct {
	gauge prometheus.Gauge
}

func (g *promGaugeMeter) Add(i int64) { g.gauge.Add(float64(i)) }
func (g *promGaugeMeter) Set(i int64) { g.gauge.Set(float64(i)) }

func (p *prometheusBackend) newGaugeMeter(name string) GaugeMeter {
	meter := &promGaugeMeter{
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
		}),
	}
	if err := prometheus.Register(meter.gauge); err != nil {
		logger.Warn("unable to register gauge", "name", name, "err", err)
	}
	return meter
}

type promHistogramMeter struct {
	histogram prometheus.Histogram
}

func (h *promHistogramMeter) Observe(i int64) { h.histogram.Observe(float64(i)) }

func (p *prometheusBackend) newHistogramMeter(name string, buckets []int64) HistogramMeter {
	floatBuckets := make([]float64, len(buckets))
	for i, b := range buckets {
		floatBuckets[i] = float64(b)
	}
	meter := &promHistogramMeter{
		histogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Buckets:   floatBuckets,
		}),
	}
	if err := prometheus.Register(meter.histogram); err != nil {
		logger.Warn("unable to register histogram", "name", name, "err", err)
	}
	return meter
}
