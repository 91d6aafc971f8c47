// Package main implements the entry point for the llamaneuro server:
// a simulated-EEG signal processor, a neurally guided text generator,
// and the HTTP gateway that exposes both.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
	"github.com/llamasearchai/llamaneuro/gateway"
	"github.com/llamasearchai/llamaneuro/guidance"
	"github.com/llamasearchai/llamaneuro/metric"
	"github.com/llamasearchai/llamaneuro/natsclient"
	"github.com/llamasearchai/llamaneuro/neuro"
)

// Build information constants
const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "llamaneuro"
)

const shutdownTimeout = 10 * time.Second

// namedComponent pairs a lifecycle component with its log name.
type namedComponent struct {
	name string
	c    component.LifecycleComponent
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid", "path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting llamaneuro",
		"version", Version,
		"config_path", cliCfg.ConfigPath,
		"simulated", cfg.Processor.Simulated,
		"backend", cfg.Generator.Backend)

	ctx := context.Background()
	deps, natsClient, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close(ctx)
	}

	processor := neuro.New(cfg.Processor, deps, neuro.WithSubject(cfg.NATS.Subject))
	generator := guidance.NewGenerator(cfg.Generator, deps)
	server := gateway.NewServer(config.NewSafeConfig(cfg), processor, generator, deps)

	components := []namedComponent{
		{"processor", processor},
		{"generator", generator},
		{"gateway", server},
	}

	for _, entry := range components {
		if err := entry.c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", entry.name, err)
		}
	}
	for _, entry := range components {
		if err := entry.c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", entry.name, err)
		}
	}

	slog.Info("All components started", "addr", server.Addr())

	return waitForShutdown(ctx, components)
}

// loadConfiguration loads the config file and applies CLI overrides.
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Port > 0 {
		cfg.Server.Port = cliCfg.Port
	}
	if cliCfg.NATSURL != "" {
		cfg.NATS.URL = cliCfg.NATSURL
		cfg.NATS.Enabled = true
	}
	if fieldErrs := cfg.Validate(); len(fieldErrs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", fieldErrs)
	}
	return cfg, nil
}

// setupInfrastructure builds the shared dependencies: the metrics
// registry always, the NATS client only when enabled.
func setupInfrastructure(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (component.Dependencies, *natsclient.Client, error) {
	registry := metric.NewMetricsRegistry()
	deps := component.Dependencies{
		MetricsRegistry: registry,
		Logger:          logger,
	}

	if !cfg.NATS.Enabled {
		slog.Info("NATS disabled, classification publishing is off")
		return deps, nil, nil
	}

	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithLogger(logger),
		natsclient.WithClientName(cfg.NATS.Name),
		natsclient.WithMetrics(registry),
	)
	if err != nil {
		return deps, nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", natsClient.URL())
	if err := natsClient.Connect(ctx); err != nil {
		return deps, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return deps, nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	deps.NATSClient = natsClient
	return deps, natsClient, nil
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops the
// components in reverse start order.
func waitForShutdown(ctx context.Context, components []namedComponent) error {
	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-signalCtx.Done()
	slog.Info("Shutdown signal received")

	for i := len(components) - 1; i >= 0; i-- {
		entry := components[i]
		if err := entry.c.Stop(shutdownTimeout); err != nil {
			slog.Warn("Component stop failed", "component", entry.name, "error", err)
		}
	}

	slog.Info("Shutdown complete")
	return nil
}
