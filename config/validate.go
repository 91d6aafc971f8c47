package config

import (
	"fmt"
)

// FieldError reports a single invalid configuration field. Validation
// collects every offending field in one pass so partial-success
// reconfiguration can report per-key results.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (fe FieldError) Error() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

// Validate checks the whole configuration and returns every invalid
// field. An empty slice means the configuration is usable.
func (c *Config) Validate() []FieldError {
	var errs []FieldError
	errs = append(errs, c.Server.Validate()...)
	errs = append(errs, c.NATS.Validate()...)
	errs = append(errs, c.Processor.Validate()...)
	errs = append(errs, c.Generator.Validate()...)
	return errs
}

// Validate checks the gateway section.
func (s ServerConfig) Validate() []FieldError {
	var errs []FieldError
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, FieldError{"server.port", fmt.Sprintf("must be in [1, 65535], got %d", s.Port)})
	}
	if s.IngestRateLimit <= 0 {
		errs = append(errs, FieldError{"server.ingest_rate_limit", "must be positive"})
	}
	if s.IngestBurst < 1 {
		errs = append(errs, FieldError{"server.ingest_burst", "must be at least 1"})
	}
	return errs
}

// Validate checks the NATS section.
func (n NATSConfig) Validate() []FieldError {
	var errs []FieldError
	if !n.Enabled {
		return nil
	}
	if n.URL == "" {
		errs = append(errs, FieldError{"nats.url", "required when nats is enabled"})
	}
	if n.Subject == "" {
		errs = append(errs, FieldError{"nats.subject", "required when nats is enabled"})
	}
	return errs
}

// Validate checks the processor section.
func (p ProcessorConfig) Validate() []FieldError {
	var errs []FieldError

	if p.SamplingRate <= 0 {
		errs = append(errs, FieldError{"processor.sampling_rate", fmt.Sprintf("must be positive, got %d", p.SamplingRate)})
	}
	if p.BufferDuration <= 0 {
		errs = append(errs, FieldError{"processor.buffer_duration", fmt.Sprintf("must be positive, got %g", p.BufferDuration)})
	}
	if p.UpdateInterval <= 0 {
		errs = append(errs, FieldError{"processor.update_interval", fmt.Sprintf("must be positive, got %g", p.UpdateInterval)})
	}

	if len(p.Electrodes) == 0 {
		errs = append(errs, FieldError{"processor.electrodes", "at least one electrode required"})
	}
	seen := make(map[string]bool, len(p.Electrodes))
	for _, name := range p.Electrodes {
		if name == "" {
			errs = append(errs, FieldError{"processor.electrodes", "electrode names must be non-empty"})
			break
		}
		if seen[name] {
			errs = append(errs, FieldError{"processor.electrodes", fmt.Sprintf("duplicate electrode %q", name)})
			break
		}
		seen[name] = true
	}

	if len(p.FrequencyBands) == 0 {
		errs = append(errs, FieldError{"processor.frequency_bands", "at least one band required"})
	}
	for name, band := range p.FrequencyBands {
		if band[0] < 0 || band[0] >= band[1] {
			errs = append(errs, FieldError{
				"processor.frequency_bands." + name,
				fmt.Sprintf("band must satisfy 0 <= low < high, got [%g, %g)", band[0], band[1]),
			})
		}
	}

	if len(p.Classes) == 0 {
		errs = append(errs, FieldError{"processor.classes", "at least one class required"})
	}
	seenClass := make(map[string]bool, len(p.Classes))
	for _, label := range p.Classes {
		if label == "" {
			errs = append(errs, FieldError{"processor.classes", "class labels must be non-empty"})
			break
		}
		if seenClass[label] {
			errs = append(errs, FieldError{"processor.classes", fmt.Sprintf("duplicate class %q", label)})
			break
		}
		seenClass[label] = true
	}

	switch p.ConnectivityMethod {
	case "", "correlation", "coherence":
	default:
		errs = append(errs, FieldError{
			"processor.connectivity_method",
			fmt.Sprintf("must be \"correlation\" or \"coherence\", got %q", p.ConnectivityMethod),
		})
	}

	if p.EncoderHiddenDim < 1 {
		errs = append(errs, FieldError{"processor.encoder_hidden_dim", "must be at least 1"})
	}
	if p.EncoderHeads < 1 {
		errs = append(errs, FieldError{"processor.encoder_heads", "must be at least 1"})
	} else if p.EncoderHiddenDim >= 1 && p.EncoderHiddenDim%p.EncoderHeads != 0 {
		errs = append(errs, FieldError{
			"processor.encoder_heads",
			fmt.Sprintf("encoder_hidden_dim %d must be divisible by encoder_heads %d", p.EncoderHiddenDim, p.EncoderHeads),
		})
	}
	if p.EncoderLayers < 1 {
		errs = append(errs, FieldError{"processor.encoder_layers", "must be at least 1"})
	}
	if p.ClassifierHiddenDim < 1 {
		errs = append(errs, FieldError{"processor.classifier_hidden_dim", "must be at least 1"})
	}

	if p.IngestQueueSize < 1 {
		errs = append(errs, FieldError{"processor.ingest_queue_size", "must be at least 1"})
	}
	if p.StopTimeoutSeconds <= 0 {
		errs = append(errs, FieldError{"processor.stop_timeout_seconds", "must be positive"})
	}

	return errs
}

// Validate checks the generator section.
func (g GeneratorConfig) Validate() []FieldError {
	var errs []FieldError

	switch g.Backend {
	case "stub", "openai":
	default:
		errs = append(errs, FieldError{"generator.backend", fmt.Sprintf("must be \"stub\" or \"openai\", got %q", g.Backend)})
	}
	if g.Backend == "openai" && g.Model == "" {
		errs = append(errs, FieldError{"generator.model", "required for the openai backend"})
	}

	if g.MaxTokens < 1 {
		errs = append(errs, FieldError{"generator.max_tokens", "must be at least 1"})
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		errs = append(errs, FieldError{"generator.temperature", fmt.Sprintf("must be in [0, 2], got %g", g.Temperature)})
	}
	if g.TopP <= 0 || g.TopP > 1 {
		errs = append(errs, FieldError{"generator.top_p", fmt.Sprintf("must be in (0, 1], got %g", g.TopP)})
	}
	if g.FrequencyPenalty < -2 || g.FrequencyPenalty > 2 {
		errs = append(errs, FieldError{"generator.frequency_penalty", fmt.Sprintf("must be in [-2, 2], got %g", g.FrequencyPenalty)})
	}
	if g.GuidanceStrength < 0 || g.GuidanceStrength > 1 {
		errs = append(errs, FieldError{"generator.guidance_strength", fmt.Sprintf("must be in [0, 1], got %g", g.GuidanceStrength)})
	}

	if g.HistoryLimit < 1 {
		errs = append(errs, FieldError{"generator.history_limit", "must be at least 1"})
	}
	if g.QueueSize < 1 {
		errs = append(errs, FieldError{"generator.queue_size", "must be at least 1"})
	}

	return errs
}
