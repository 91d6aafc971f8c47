package neuro

import (
	"time"

	"github.com/llamasearchai/llamaneuro/component"
)

// Status is the processor's queryable state for the API layer.
type Status struct {
	State               string        `json:"state"`
	Active              bool          `json:"active"`
	Simulated           bool          `json:"simulated"`
	SimulatedLabel      string        `json:"simulated_label,omitempty"`
	SimulatedConfidence float64       `json:"simulated_confidence,omitempty"`
	SamplingRate        int           `json:"sampling_rate"`
	WindowSamples       int           `json:"window_samples"`
	Electrodes          []string      `json:"electrodes"`
	Classes             []string      `json:"classes"`
	TickCount           uint64        `json:"tick_count"`
	ErrorCount          int           `json:"error_count"`
	LastError           string        `json:"last_error,omitempty"`
	Uptime              time.Duration `json:"uptime"`
}

// Status reports the current lifecycle state and configuration shape.
func (p *Processor) Status() *Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &Status{
		State:         p.state.String(),
		Active:        p.state == component.StateStarted,
		Simulated:     p.cfg.Simulated,
		SamplingRate:  p.cfg.SamplingRate,
		WindowSamples: p.cfg.WindowSamples(),
		Electrodes:    append([]string(nil), p.cfg.Electrodes...),
		Classes:       append([]string(nil), p.cfg.Classes...),
		TickCount:     p.ticks.Load(),
		ErrorCount:    p.errCount,
		LastError:     p.lastErr,
		Uptime:        time.Since(p.startTime),
	}
	if p.cfg.Simulated && p.pipe != nil {
		s.SimulatedLabel, s.SimulatedConfidence = p.pipe.sim.Target()
	}
	return s
}

// Meta describes the processor for component discovery.
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        "processor",
		Type:        "processor",
		Description: "Real-time EEG signal pipeline: rolling window, feature extraction, transformer encoding, motor-imagery classification",
		Version:     "1.0.0",
	}
}

// ConfigSchema lists the options Reconfigure accepts.
func (p *Processor) ConfigSchema() component.ConfigSchema {
	minRate := 1.0
	minSeconds := 0.001
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"sampling_rate": {
				Type:        "int",
				Description: "Signal sampling rate in Hz",
				Minimum:     &minRate,
			},
			"buffer_duration": {
				Type:        "float",
				Description: "Rolling window length in seconds",
				Minimum:     &minSeconds,
			},
			"update_interval": {
				Type:        "float",
				Description: "Seconds between pipeline ticks",
				Minimum:     &minSeconds,
			},
			"electrodes": {
				Type:        "array",
				Description: "Electrode names, one per channel",
			},
			"frequency_bands": {
				Type:        "array",
				Description: "Band name to [low, high) Hz range",
			},
			"classes": {
				Type:        "array",
				Description: "Class labels the classifier predicts",
			},
			"simulated": {
				Type:        "bool",
				Description: "Synthesize signal instead of consuming ingested chunks",
			},
			"use_connectivity": {
				Type:        "bool",
				Description: "Compute per-band channel connectivity features",
			},
			"connectivity_method": {
				Type:        "enum",
				Description: "Connectivity measure",
				Enum:        []string{"correlation", "coherence"},
			},
			"encoder_weights_path": {
				Type:        "string",
				Description: "Optional encoder weight file; missing file means seeded init",
			},
			"classifier_weights_path": {
				Type:        "string",
				Description: "Optional classifier weight file; missing file means seeded init",
			},
		},
	}
}

// Health reports liveness for the health endpoint.
func (p *Processor) Health() component.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return component.HealthStatus{
		Healthy:    p.state != component.StateFailed,
		LastCheck:  time.Now(),
		ErrorCount: p.errCount,
		LastError:  p.lastErr,
		Uptime:     time.Since(p.startTime),
	}
}

// DataFlow reports throughput for component discovery.
func (p *Processor) DataFlow() component.FlowMetrics {
	p.mu.Lock()
	errCount := p.errCount
	p.mu.Unlock()

	ticks := p.ticks.Load()
	uptime := time.Since(p.startTime).Seconds()

	flow := component.FlowMetrics{}
	if uptime > 0 {
		flow.MessagesPerSecond = float64(ticks) / uptime
	}
	if ticks > 0 {
		flow.ErrorRate = float64(errCount) / float64(ticks)
	}
	if s := p.published.Load(); s != nil {
		flow.LastActivity = s.LastUpdate
	}
	return flow
}
