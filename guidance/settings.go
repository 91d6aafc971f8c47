package guidance

import (
	"time"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
)

// Status is the generator's queryable state for the API layer.
type Status struct {
	State            string  `json:"state"`
	Active           bool    `json:"active"`
	Backend          string  `json:"backend"`
	Model            string  `json:"model"`
	QueueDepth       int     `json:"queue_depth"`
	Generated        uint64  `json:"generated"`
	ErrorCount       int     `json:"error_count"`
	LastError        string  `json:"last_error,omitempty"`
	GuidanceActive   bool    `json:"guidance_active"`
	GuidanceLabel    string  `json:"guidance_label,omitempty"`
	GuidanceStrength float64 `json:"guidance_strength"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	MaxTokens        int     `json:"max_tokens"`
	HistorySize      int     `json:"history_size"`
}

// Status reports the current lifecycle state and settings.
func (g *Generator) Status() *Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &Status{
		State:            g.state.String(),
		Active:           g.state == component.StateStarted,
		Model:            g.cfg.Model,
		Generated:        g.generated.Load(),
		ErrorCount:       g.errCount,
		LastError:        g.lastErr,
		GuidanceStrength: g.cfg.GuidanceStrength,
		Temperature:      g.cfg.Temperature,
		TopP:             g.cfg.TopP,
		FrequencyPenalty: g.cfg.FrequencyPenalty,
		MaxTokens:        g.cfg.MaxTokens,
		HistorySize:      len(g.history),
	}
	if g.backend != nil {
		s.Backend = g.backend.Name()
	}
	if g.requests != nil {
		s.QueueDepth = len(g.requests)
	}
	if g.guidance != nil {
		s.GuidanceActive = true
		s.GuidanceLabel = g.guidance.Label
	}
	return s
}

// UpdateSettings applies a subset of recognized options. Each key is
// validated independently; invalid keys are reported while valid keys
// still take effect.
func (g *Generator) UpdateSettings(options map[string]any) []config.FieldError {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []config.FieldError
	for key, raw := range options {
		switch key {
		case "temperature":
			v, ok := asFloat(raw)
			if !ok || v < 0 || v > 2 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be in [0, 2]"})
				continue
			}
			g.cfg.Temperature = v

		case "top_p":
			v, ok := asFloat(raw)
			if !ok || v <= 0 || v > 1 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be in (0, 1]"})
				continue
			}
			g.cfg.TopP = v

		case "frequency_penalty":
			v, ok := asFloat(raw)
			if !ok || v < -2 || v > 2 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be in [-2, 2]"})
				continue
			}
			g.cfg.FrequencyPenalty = v

		case "guidance_strength":
			v, ok := asFloat(raw)
			if !ok || v < 0 || v > 1 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be in [0, 1]"})
				continue
			}
			g.cfg.GuidanceStrength = v

		case "max_tokens":
			v, ok := asFloat(raw)
			if !ok || v < 1 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be at least 1"})
				continue
			}
			g.cfg.MaxTokens = int(v)

		case "model":
			s, ok := raw.(string)
			if !ok || s == "" {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a non-empty string"})
				continue
			}
			g.cfg.Model = s

		case "semantic_mapping":
			mapping, ok := asSemanticMapping(raw)
			if !ok {
				errs = append(errs, config.FieldError{Field: key, Message: "must map labels to concept lists"})
				continue
			}
			g.cfg.SemanticMapping = mapping

		default:
			errs = append(errs, config.FieldError{Field: key, Message: "unknown option"})
		}
	}

	g.logger.Info("generator settings updated", "keys", len(options), "invalid_keys", len(errs))
	return errs
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asSemanticMapping(v any) (map[string][]string, bool) {
	switch mapping := v.(type) {
	case map[string][]string:
		out := make(map[string][]string, len(mapping))
		for label, concepts := range mapping {
			out[label] = append([]string(nil), concepts...)
		}
		return out, true
	case map[string]any:
		out := make(map[string][]string, len(mapping))
		for label, raw := range mapping {
			list, ok := raw.([]any)
			if !ok {
				return nil, false
			}
			concepts := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				concepts = append(concepts, s)
			}
			out[label] = concepts
		}
		return out, true
	default:
		return nil, false
	}
}

// Meta describes the generator for component discovery.
func (g *Generator) Meta() component.Metadata {
	return component.Metadata{
		Name:        "generator",
		Type:        "generator",
		Description: "Language-model text generator biased by the latest neural classification",
		Version:     "1.0.0",
	}
}

// ConfigSchema lists the options UpdateSettings accepts.
func (g *Generator) ConfigSchema() component.ConfigSchema {
	zero := 0.0
	two := 2.0
	one := 1.0
	minTokens := 1.0
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"temperature": {
				Type:        "float",
				Description: "Sampling temperature before guidance adjustment",
				Minimum:     &zero,
				Maximum:     &two,
			},
			"top_p": {
				Type:        "float",
				Description: "Nucleus sampling probability mass",
				Maximum:     &one,
			},
			"frequency_penalty": {
				Type:        "float",
				Description: "Frequency penalty before guidance adjustment",
			},
			"guidance_strength": {
				Type:        "float",
				Description: "How strongly the neural classification biases generation; 0 disables",
				Minimum:     &zero,
				Maximum:     &one,
			},
			"max_tokens": {
				Type:        "int",
				Description: "Default completion length cap",
				Minimum:     &minTokens,
			},
			"model": {
				Type:        "string",
				Description: "Backend model identifier",
			},
			"semantic_mapping": {
				Type:        "array",
				Description: "Class label to concept list used for prompt augmentation",
			},
		},
	}
}

// Health reports liveness for the health endpoint.
func (g *Generator) Health() component.HealthStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return component.HealthStatus{
		Healthy:    g.state != component.StateFailed,
		LastCheck:  time.Now(),
		ErrorCount: g.errCount,
		LastError:  g.lastErr,
		Uptime:     time.Since(g.startTime),
	}
}

// DataFlow reports throughput for component discovery.
func (g *Generator) DataFlow() component.FlowMetrics {
	g.mu.Lock()
	errCount := g.errCount
	var last time.Time
	if n := len(g.history); n > 0 {
		last = g.history[n-1].Timestamp
	}
	g.mu.Unlock()

	generated := g.generated.Load()
	uptime := time.Since(g.startTime).Seconds()

	flow := component.FlowMetrics{LastActivity: last}
	if uptime > 0 {
		flow.MessagesPerSecond = float64(generated) / uptime
	}
	if total := generated + uint64(errCount); total > 0 {
		flow.ErrorRate = float64(errCount) / float64(total)
	}
	return flow
}
