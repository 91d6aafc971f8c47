// Package metric manages Prometheus metric registration for all
// components. A single MetricsRegistry owns a private Prometheus
// registry, preventing collisions with any global state, and carries
// the core platform metrics every component shares.
package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llamasearchai/llamaneuro/errors"
)

// MetricsRegistrar is the interface components use to register their
// own metrics. A nil *MetricsRegistry is valid everywhere metrics are
// optional; components treat it as metrics-disabled.
type MetricsRegistrar interface {
	RegisterCounter(component, name string, counter prometheus.Counter) error
	RegisterGauge(component, name string, gauge prometheus.Gauge) error
	RegisterHistogram(component, name string, histogram prometheus.Histogram) error
	RegisterCounterVec(component, name string, vec *prometheus.CounterVec) error
	RegisterGaugeVec(component, name string, vec *prometheus.GaugeVec) error
	RegisterHistogramVec(component, name string, vec *prometheus.HistogramVec) error
	Unregister(component, name string) bool
}

// MetricsRegistry owns the process-private Prometheus registry and the
// core platform metrics.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a registry pre-populated with the core
// platform metrics and the Go runtime collectors.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		registered:         make(map[string]prometheus.Collector),
	}

	r.Metrics = NewMetrics()
	r.registerCore()

	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the shared platform metrics.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format. The gateway mounts this at /metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (r *MetricsRegistry) register(component, name, op string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", name, component),
			"MetricsRegistry", op, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapInvalid(err, "MetricsRegistry", op,
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "MetricsRegistry", op, "prometheus registration")
	}

	r.registered[key] = c
	return nil
}

// RegisterCounter registers a counter metric for a component.
func (r *MetricsRegistry) RegisterCounter(component, name string, counter prometheus.Counter) error {
	return r.register(component, name, "RegisterCounter", counter)
}

// RegisterGauge registers a gauge metric for a component.
func (r *MetricsRegistry) RegisterGauge(component, name string, gauge prometheus.Gauge) error {
	return r.register(component, name, "RegisterGauge", gauge)
}

// RegisterHistogram registers a histogram metric for a component.
func (r *MetricsRegistry) RegisterHistogram(component, name string, histogram prometheus.Histogram) error {
	return r.register(component, name, "RegisterHistogram", histogram)
}

// RegisterCounterVec registers a labeled counter for a component.
func (r *MetricsRegistry) RegisterCounterVec(component, name string, vec *prometheus.CounterVec) error {
	return r.register(component, name, "RegisterCounterVec", vec)
}

// RegisterGaugeVec registers a labeled gauge for a component.
func (r *MetricsRegistry) RegisterGaugeVec(component, name string, vec *prometheus.GaugeVec) error {
	return r.register(component, name, "RegisterGaugeVec", vec)
}

// RegisterHistogramVec registers a labeled histogram for a component.
func (r *MetricsRegistry) RegisterHistogramVec(component, name string, vec *prometheus.HistogramVec) error {
	return r.register(component, name, "RegisterHistogramVec", vec)
}

// Unregister removes a previously registered metric. Returns false
// when the metric was not registered.
func (r *MetricsRegistry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	c, exists := r.registered[key]
	if !exists {
		return false
	}

	delete(r.registered, key)
	return r.prometheusRegistry.Unregister(c)
}

func (r *MetricsRegistry) registerCore() {
	m := r.Metrics
	r.prometheusRegistry.MustRegister(
		m.ComponentState,
		m.HealthStatus,
		m.ErrorsTotal,
		m.TicksTotal,
		m.ClassificationsTotal,
		m.InferenceDuration,
		m.GenerationsTotal,
		m.GenerationDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebsocketClients,
		m.NATSConnected,
		m.NATSReconnects,
	)
}
