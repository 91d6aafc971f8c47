package buffer

import (
	"github.com/llamasearchai/llamaneuro/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// bufferMetrics exposes queue counters through Prometheus. It mirrors
// the always-on Statistics; the two are updated together.
type bufferMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"queue": prefix}
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llamaneuro", Subsystem: "queue", Name: "writes_total",
			ConstLabels: labels, Help: "Total queue write operations",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llamaneuro", Subsystem: "queue", Name: "reads_total",
			ConstLabels: labels, Help: "Total queue read operations",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llamaneuro", Subsystem: "queue", Name: "overflows_total",
			ConstLabels: labels, Help: "Total writes that found the queue full",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llamaneuro", Subsystem: "queue", Name: "drops_total",
			ConstLabels: labels, Help: "Total items discarded by the overflow policy",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llamaneuro", Subsystem: "queue", Name: "size",
			ConstLabels: labels, Help: "Current number of queued items",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llamaneuro", Subsystem: "queue", Name: "utilization",
			ConstLabels: labels, Help: "Queue fill level (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "queue_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_overflows", m.overflows); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateGauges(size, capacity)
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateGauges(size, capacity)
}

func (m *bufferMetrics) recordOverflow() { m.overflows.Inc() }
func (m *bufferMetrics) recordDrop()     { m.drops.Inc() }

func (m *bufferMetrics) updateGauges(size, capacity int) {
	m.size.Set(float64(size))
	if capacity > 0 {
		m.utilization.Set(float64(size) / float64(capacity))
	}
}
