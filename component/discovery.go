package component

import (
	"time"
)

// Discoverable lets the gateway and health endpoints inspect a
// component without knowing its concrete type.
type Discoverable interface {
	// Meta returns basic component information.
	Meta() Metadata

	// ConfigSchema describes the component's configurable parameters.
	ConfigSchema() ConfigSchema

	// Health returns the current health status.
	Health() HealthStatus

	// DataFlow returns current throughput metrics.
	DataFlow() FlowMetrics
}

// Metadata describes what a component is.
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "processor", "generator", "gateway"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ConfigSchema describes the configuration parameters for a component.
type ConfigSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single configuration property.
type PropertySchema struct {
	Type        string   `json:"type"` // "string", "int", "bool", "float", "enum", "array"
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// HealthStatus describes the current health state of a component.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the data flow through a component.
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}
