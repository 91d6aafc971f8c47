// Package config defines the application configuration: an explicit
// Config struct constructed once and handed to each component, loaded
// from a JSON file over built-in defaults. There is no process-wide
// config lookup; components receive the sections they need.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/llamasearchai/llamaneuro/errors"
)

// Config is the complete application configuration.
type Config struct {
	Version   string          `json:"version"`
	Server    ServerConfig    `json:"server"`
	NATS      NATSConfig      `json:"nats"`
	Processor ProcessorConfig `json:"processor"`
	Generator GeneratorConfig `json:"generator"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	AllowedOrigins  []string `json:"allowed_origins"`
	IngestRateLimit float64  `json:"ingest_rate_limit"` // chunks per second per client
	IngestBurst     int      `json:"ingest_burst"`
}

// NATSConfig configures the optional internal data plane. When
// Enabled is false no client is constructed and publishing is skipped.
type NATSConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Subject string `json:"subject"`
	Name    string `json:"name"`
}

// ProcessorConfig configures the signal pipeline.
type ProcessorConfig struct {
	SamplingRate   int     `json:"sampling_rate"`   // Hz
	BufferDuration float64 `json:"buffer_duration"` // seconds of signal kept in the window
	UpdateInterval float64 `json:"update_interval"` // seconds between ticks

	Electrodes     []string              `json:"electrodes"`
	FrequencyBands map[string][2]float64 `json:"frequency_bands"` // name -> [low, high) Hz
	Classes        []string              `json:"classes"`

	Simulated          bool   `json:"simulated"`
	UseConnectivity    bool   `json:"use_connectivity"`
	ConnectivityMethod string `json:"connectivity_method"` // "correlation" or "coherence"

	EncoderHiddenDim    int `json:"encoder_hidden_dim"`
	EncoderHeads        int `json:"encoder_heads"`
	EncoderLayers       int `json:"encoder_layers"`
	ClassifierHiddenDim int `json:"classifier_hidden_dim"`

	// Optional weight files. Missing files mean seeded random init;
	// a malformed file is an initialization failure.
	EncoderWeightsPath    string `json:"encoder_weights_path"`
	ClassifierWeightsPath string `json:"classifier_weights_path"`

	IngestQueueSize    int     `json:"ingest_queue_size"`
	StopTimeoutSeconds float64 `json:"stop_timeout_seconds"`
	Seed               int64   `json:"seed"`
}

// GeneratorConfig configures the text-generation collaborator.
type GeneratorConfig struct {
	Backend          string  `json:"backend"` // "stub" or "openai"
	Model            string  `json:"model"`
	APIKeyEnv        string  `json:"api_key_env"` // env var holding the API key
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`

	GuidanceStrength float64             `json:"guidance_strength"` // 0 disables neural guidance
	SemanticMapping  map[string][]string `json:"semantic_mapping"`  // class label -> concept list

	HistoryLimit int   `json:"history_limit"`
	QueueSize    int   `json:"queue_size"`
	Seed         int64 `json:"seed"`
}

// WindowSamples returns the derived signal window length in samples.
func (p ProcessorConfig) WindowSamples() int {
	return int(float64(p.SamplingRate)*p.BufferDuration + 0.5)
}

// Clone returns a deep copy via a JSON round trip.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Load reads a JSON config file layered over the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapInvalid(errors.ErrConfigNotFound, "config", "Load", path)
		}
		return nil, errors.WrapFatal(err, "config", "Load", "read config file")
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
	}

	if fieldErrs := cfg.Validate(); len(fieldErrs) > 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%d invalid fields: %v", len(fieldErrs), fieldErrs),
			"config", "Load", "validate config file")
	}

	return cfg, nil
}

// SafeConfig provides thread-safe access to a Config.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg; a nil cfg becomes an empty Config.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update", "nil config")
	}
	if fieldErrs := cfg.Validate(); len(fieldErrs) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%d invalid fields: %v", len(fieldErrs), fieldErrs),
			"SafeConfig", "Update", "validate config")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
