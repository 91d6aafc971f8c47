package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the platform-level metrics shared across components.
// Domain-specific metrics are registered by each component through the
// MetricsRegistrar interface.
type Metrics struct {
	// Component lifecycle
	ComponentState *prometheus.GaugeVec
	HealthStatus   *prometheus.GaugeVec
	ErrorsTotal    *prometheus.CounterVec

	// Signal pipeline
	TicksTotal           prometheus.Counter
	ClassificationsTotal *prometheus.CounterVec
	InferenceDuration    prometheus.Histogram

	// Text generation
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration prometheus.Histogram

	// Gateway
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WebsocketClients    prometheus.Gauge

	// NATS
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates all platform metrics. They are unregistered until
// NewMetricsRegistry wires them into a Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "llamaneuro",
				Subsystem: "component",
				Name:      "state",
				Help:      "Component state (0=stopped, 1=running, 2=failed)",
			},
			[]string{"component"},
		),

		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "llamaneuro",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llamaneuro",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total errors by component and class",
			},
			[]string{"component", "class"},
		),

		TicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "llamaneuro",
				Subsystem: "processor",
				Name:      "ticks_total",
				Help:      "Total processing loop iterations",
			},
		),

		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llamaneuro",
				Subsystem: "processor",
				Name:      "classifications_total",
				Help:      "Total classifications by predicted label",
			},
			[]string{"label"},
		),

		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "llamaneuro",
				Subsystem: "processor",
				Name:      "inference_duration_seconds",
				Help:      "End-to-end feature extraction plus model inference time",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
		),

		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llamaneuro",
				Subsystem: "generator",
				Name:      "generations_total",
				Help:      "Total text generation requests by status",
			},
			[]string{"status"},
		),

		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "llamaneuro",
				Subsystem: "generator",
				Name:      "duration_seconds",
				Help:      "Text generation round-trip time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llamaneuro",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "llamaneuro",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request handling time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "llamaneuro",
				Subsystem: "ws",
				Name:      "clients",
				Help:      "Connected websocket clients",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "llamaneuro",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "llamaneuro",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total NATS reconnect events",
			},
		),
	}
}
