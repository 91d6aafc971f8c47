package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath  string
	Port        int
	NATSURL     string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("LLAMANEURO_CONFIG", ""),
		"Path to configuration file, empty for built-in defaults (env: LLAMANEURO_CONFIG)")

	flag.IntVar(&cfg.Port, "port",
		getEnvInt("LLAMANEURO_PORT", 0),
		"Override HTTP listen port, 0 keeps the configured port (env: LLAMANEURO_PORT)")

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("LLAMANEURO_NATS_URL", ""),
		"Override NATS server URL (env: LLAMANEURO_NATS_URL)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("LLAMANEURO_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: LLAMANEURO_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("LLAMANEURO_LOG_FORMAT", "json"),
		"Log format: json, text (env: LLAMANEURO_LOG_FORMAT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
