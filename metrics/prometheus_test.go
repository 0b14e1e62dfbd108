// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopByDefault(t *testing.T) {
	// must not panic and must expose no handler
	Counter("noop_counter").Add(1)
	Gauge("noop_gauge").Set(42)
	assert.Nil(t, HTTPHandler())
}

func TestLazyLoading(t *testing.T) {
	lazyCounter := LazyLoadCounter("lazy_counter")
	lazyGauge := LazyLoadGauge("lazy_gauge")

	// binding happens on first use, and stays bound
	c1 := lazyCounter()
	c2 := lazyCounter()
	require.NotNil(t, c1)
	assert.Equal(t, c1, c2)
	lazyGauge().Set(1)
}

func TestPrometheusScrape(t *testing.T) {
	InitializePrometheusMetrics()
	InitializePrometheusMetrics() // idempotent

	Counter("test_counter").Add(3)
	Gauge("test_gauge").Set(7)
	Histogram("test_hist", Bucket10s).Observe(1200)
	CounterVec("test_counter_vec", []string{"kind"}).AddWithLabel(1, map[string]string{"kind": "replay"})

	srv := httptest.NewServer(HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(string(body)))
	require.NoError(t, err)

	counter, ok := families[namespace+"_test_counter"]
	require.True(t, ok)
	assert.Equal(t, float64(3), counter.GetMetric()[0].GetCounter().GetValue())

	gauge, ok := families[namespace+"_test_gauge"]
	require.True(t, ok)
	assert.Equal(t, float64(7), gauge.GetMetric()[0].GetGauge().GetValue())

	_, ok = families[namespace+"_test_hist"]
	assert.True(t, ok)
}
