package component

import (
	"log/slog"

	"github.com/llamasearchai/llamaneuro/metric"
	"github.com/llamasearchai/llamaneuro/natsclient"
)

// Dependencies carries the external dependencies handed to each
// component at construction time. Every field may be nil: a nil
// NATSClient disables publishing, a nil MetricsRegistry disables
// Prometheus export, a nil Logger falls back to slog.Default().
type Dependencies struct {
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// GetLogger returns the configured logger or slog.Default().
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger tagged with the component name.
func (d *Dependencies) GetLoggerWithComponent(name string) *slog.Logger {
	return d.GetLogger().With("component", name)
}
