package neuro

import (
	"fmt"
	"math"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
)

// Reconfigure applies a subset of recognized options. Each key is
// validated independently; invalid keys are reported while valid keys
// in the same call still take effect (partial success). Shape-affecting
// changes (sampling rate, window duration, electrodes, bands, classes,
// weight paths) rebuild the model stack with a zero-filled window; the
// classification is reset to unknown until the next tick. Safe to call
// while running: the swap synchronizes with the tick loop. A rebuild
// that succeeds clears a failed state.
func (p *Processor) Reconfigure(options map[string]any) []config.FieldError {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := cloneProcessorConfig(p.cfg)
	var errs []config.FieldError
	rebuild := false

	for key, raw := range options {
		switch key {
		case "sampling_rate":
			v, ok := asFloat(raw)
			if !ok || v <= 0 || v != math.Trunc(v) {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a positive integer"})
				continue
			}
			if int(v) != next.SamplingRate {
				next.SamplingRate = int(v)
				rebuild = true
			}

		case "buffer_duration":
			v, ok := asFloat(raw)
			if !ok || v <= 0 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a positive number of seconds"})
				continue
			}
			if v != next.BufferDuration {
				next.BufferDuration = v
				rebuild = true
			}

		case "update_interval":
			v, ok := asFloat(raw)
			if !ok || v <= 0 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a positive number of seconds"})
				continue
			}
			next.UpdateInterval = v

		case "electrodes":
			list, ok := asStringList(raw)
			if !ok || len(list) == 0 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a non-empty list of names"})
				continue
			}
			if msg := checkUniqueNames(list); msg != "" {
				errs = append(errs, config.FieldError{Field: key, Message: msg})
				continue
			}
			if !equalStrings(list, next.Electrodes) {
				next.Electrodes = list
				rebuild = true
			}

		case "frequency_bands":
			bands, ok := asBands(raw)
			if !ok || len(bands) == 0 {
				errs = append(errs, config.FieldError{Field: key, Message: "must map band names to [low, high) ranges"})
				continue
			}
			bad := false
			for name, band := range bands {
				if band[0] < 0 || band[0] >= band[1] {
					errs = append(errs, config.FieldError{
						Field:   key + "." + name,
						Message: fmt.Sprintf("band must satisfy 0 <= low < high, got [%g, %g)", band[0], band[1]),
					})
					bad = true
				}
			}
			if bad {
				continue
			}
			if !equalBands(bands, next.FrequencyBands) {
				next.FrequencyBands = bands
				rebuild = true
			}

		case "classes":
			list, ok := asStringList(raw)
			if !ok || len(list) < 2 {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a list of at least 2 labels"})
				continue
			}
			if msg := checkUniqueNames(list); msg != "" {
				errs = append(errs, config.FieldError{Field: key, Message: msg})
				continue
			}
			if !equalStrings(list, next.Classes) {
				next.Classes = list
				rebuild = true
			}

		case "simulated":
			b, ok := raw.(bool)
			if !ok {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a boolean"})
				continue
			}
			next.Simulated = b

		case "use_connectivity":
			b, ok := raw.(bool)
			if !ok {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a boolean"})
				continue
			}
			next.UseConnectivity = b

		case "connectivity_method":
			s, ok := raw.(string)
			if !ok || (s != "correlation" && s != "coherence") {
				errs = append(errs, config.FieldError{Field: key, Message: `must be "correlation" or "coherence"`})
				continue
			}
			next.ConnectivityMethod = s

		case "encoder_weights_path":
			s, ok := raw.(string)
			if !ok {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a file path string"})
				continue
			}
			if s != next.EncoderWeightsPath {
				next.EncoderWeightsPath = s
				rebuild = true
			}

		case "classifier_weights_path":
			s, ok := raw.(string)
			if !ok {
				errs = append(errs, config.FieldError{Field: key, Message: "must be a file path string"})
				continue
			}
			if s != next.ClassifierWeightsPath {
				next.ClassifierWeightsPath = s
				rebuild = true
			}

		default:
			errs = append(errs, config.FieldError{Field: key, Message: "unknown option"})
		}
	}

	// A failed or never-built pipeline gets rebuilt even when no
	// shape-affecting key changed: resubmitting the same weight path
	// after fixing the file on disk must be able to recover.
	if p.pipe == nil || p.state == component.StateFailed {
		rebuild = true
	}

	if !rebuild {
		p.cfg = next
		p.carryForwardLocked()
		return errs
	}

	pipe, err := buildPipeline(next, p.encoderDisabled)
	if err != nil {
		errs = append(errs, config.FieldError{Field: "processor", Message: err.Error()})
		if p.pipe == nil {
			// Nothing usable to keep running on.
			p.state = component.StateFailed
			p.initErr = err
			p.lastErr = err.Error()
			p.setStateGauge()
			p.publishLocked(nil, nil, nil)
		}
		return errs
	}

	// Keep the simulator target when it survives the class change.
	if label, conf := p.simulatorTarget(); label != "" && containsLabel(next.Classes, label) {
		pipe.sim.SetTarget(label, conf)
	}
	if p.pipe != nil && p.pipe.queue != nil {
		_ = p.pipe.queue.Close()
	}
	p.pipe = pipe
	p.cfg = next
	p.initErr = nil
	if p.state == component.StateFailed || p.state == component.StateCreated {
		p.state = component.StateInitialized
	}
	p.setStateGauge()
	p.publishLocked(unknownClassification(), nil, nil)
	p.logger.Info("processor reconfigured",
		"channels", len(next.Electrodes),
		"window_samples", next.WindowSamples(),
		"classes", len(next.Classes),
		"invalid_keys", len(errs))
	return errs
}

func (p *Processor) simulatorTarget() (string, float64) {
	if p.pipe == nil {
		return "", 0
	}
	return p.pipe.sim.Target()
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

func asStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func asBands(v any) (map[string][2]float64, bool) {
	switch bands := v.(type) {
	case map[string][2]float64:
		out := make(map[string][2]float64, len(bands))
		for name, band := range bands {
			out[name] = band
		}
		return out, true
	case map[string]any:
		out := make(map[string][2]float64, len(bands))
		for name, raw := range bands {
			pair, ok := raw.([]any)
			if !ok || len(pair) != 2 {
				return nil, false
			}
			low, okLow := asFloat(pair[0])
			high, okHigh := asFloat(pair[1])
			if !okLow || !okHigh {
				return nil, false
			}
			out[name] = [2]float64{low, high}
		}
		return out, true
	default:
		return nil, false
	}
}

func checkUniqueNames(list []string) string {
	seen := make(map[string]bool, len(list))
	for _, name := range list {
		if name == "" {
			return "names must be non-empty"
		}
		if seen[name] {
			return fmt.Sprintf("duplicate entry %q", name)
		}
		seen[name] = true
	}
	return ""
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalBands(a, b map[string][2]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for name, band := range a {
		if b[name] != band {
			return false
		}
	}
	return true
}
