package metric

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r)
	require.NotNil(t, r.PrometheusRegistry())
	require.NotNil(t, r.CoreMetrics())
}

func TestRegisterCounter(t *testing.T) {
	r := NewMetricsRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})
	require.NoError(t, r.RegisterCounter("processor", "test_counter", c))

	// Same key is rejected.
	err := r.RegisterCounter("processor", "test_counter", c)
	assert.Error(t, err)

	// Same collector under a different key hits a Prometheus conflict.
	err = r.RegisterCounter("gateway", "test_counter", c)
	assert.Error(t, err)
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	r := NewMetricsRegistry()

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	require.NoError(t, r.RegisterGauge("processor", "test_gauge", g))

	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_hist", Help: "h"})
	require.NoError(t, r.RegisterHistogram("processor", "test_hist", h))

	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_vec_total", Help: "v"}, []string{"label"})
	require.NoError(t, r.RegisterCounterVec("processor", "test_vec", cv))
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "removable_total", Help: "c"})
	require.NoError(t, r.RegisterCounter("processor", "removable", c))

	assert.True(t, r.Unregister("processor", "removable"))
	assert.False(t, r.Unregister("processor", "removable"))

	// Re-registration is allowed after removal.
	require.NoError(t, r.RegisterCounter("processor", "removable", c))
}

func TestHandlerServesExposition(t *testing.T) {
	r := NewMetricsRegistry()
	r.CoreMetrics().TicksTotal.Inc()
	r.CoreMetrics().ClassificationsTotal.WithLabelValues("left_hand").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "llamaneuro_processor_ticks_total"))
	assert.True(t, strings.Contains(body, `label="left_hand"`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetricsRegistry()
	b := NewMetricsRegistry()

	// Two registries never conflict: each owns a private Prometheus
	// registry and its own core metric instances.
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "shared_name_total", Help: "c"})
	require.NoError(t, a.RegisterCounter("x", "shared", c))

	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "shared_name_total", Help: "c"})
	require.NoError(t, b.RegisterCounter("x", "shared", c2))
}
