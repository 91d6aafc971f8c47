// Package guidance implements the text-generation collaborator: a
// single worker goroutine draining a bounded request queue against a
// language-model backend, with the latest neural classification biasing
// the sampling parameters and the prompt.
package guidance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/metric"
	"github.com/llamasearchai/llamaneuro/neuro"
)

// Result is one completed generation.
type Result struct {
	Text             string        `json:"text"`
	Model            string        `json:"model"`
	Temperature      float64       `json:"temperature"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	GuidanceApplied  bool          `json:"guidance_applied"`
	GuidanceLabel    string        `json:"guidance_label,omitempty"`
	Duration         time.Duration `json:"duration"`
	Timestamp        time.Time     `json:"timestamp"`
}

// HistoryEntry is one prompt/response pair kept in the bounded
// in-memory history.
type HistoryEntry struct {
	Prompt        string    `json:"prompt"`
	Text          string    `json:"text"`
	GuidanceLabel string    `json:"guidance_label,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type request struct {
	ctx       context.Context
	prompt    string
	maxTokens int
	resp      chan response
}

type response struct {
	result *Result
	err    error
}

// Option configures a Generator at construction time.
type Option func(*Generator)

// WithBackend injects a backend directly, bypassing the configured
// backend selection. Used by tests and embedding callers.
func WithBackend(b Backend) Option {
	return func(g *Generator) { g.backend = b }
}

// Generator is the text-generation component. Requests flow through a
// bounded queue to one worker goroutine; the queue never blocks the
// caller, a full queue rejects the request.
type Generator struct {
	mu sync.Mutex

	cfg     config.GeneratorConfig
	logger  *slog.Logger
	metrics *metric.Metrics

	backend Backend
	state   component.State
	initErr error

	guidance *neuro.NeuralGuidance
	history  []HistoryEntry

	requests chan *request
	cancel   context.CancelFunc
	done     chan struct{}

	generated atomic.Uint64
	errCount  int
	lastErr   string
	startTime time.Time
}

// NewGenerator creates the generator. Call Initialize (or Start) before
// submitting prompts.
func NewGenerator(cfg config.GeneratorConfig, deps component.Dependencies, opts ...Option) *Generator {
	g := &Generator{
		cfg:       cloneGeneratorConfig(cfg),
		logger:    deps.GetLoggerWithComponent("generator"),
		state:     component.StateCreated,
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		g.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func cloneGeneratorConfig(cfg config.GeneratorConfig) config.GeneratorConfig {
	out := cfg
	out.SemanticMapping = make(map[string][]string, len(cfg.SemanticMapping))
	for label, concepts := range cfg.SemanticMapping {
		out.SemanticMapping[label] = append([]string(nil), concepts...)
	}
	return out
}

// Initialize selects the backend and allocates the request queue. The
// openai backend requires its API key environment variable to be set;
// a missing key is an initialization failure, not a silent fallback.
func (g *Generator) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initLocked()
}

func (g *Generator) initLocked() error {
	if g.backend == nil {
		switch g.cfg.Backend {
		case "stub":
			g.backend = newStubBackend(g.cfg.Seed)
		case "openai":
			key := os.Getenv(g.cfg.APIKeyEnv)
			if key == "" {
				err := errors.WrapFatal(
					fmt.Errorf("%w: environment variable %s is empty",
						errors.ErrMissingConfig, g.cfg.APIKeyEnv),
					"Generator", "Initialize", "backend selection")
				g.state = component.StateFailed
				g.initErr = err
				g.lastErr = err.Error()
				g.setStateGauge()
				return err
			}
			g.backend = newOpenAIBackend(key)
		default:
			err := errors.WrapInvalid(
				fmt.Errorf("%w: unknown backend %q", errors.ErrInvalidConfig, g.cfg.Backend),
				"Generator", "Initialize", "backend selection")
			g.state = component.StateFailed
			g.initErr = err
			g.lastErr = err.Error()
			g.setStateGauge()
			return err
		}
	}

	queueSize := g.cfg.QueueSize
	if queueSize < 1 {
		queueSize = 16
	}
	g.requests = make(chan *request, queueSize)
	g.initErr = nil
	if g.state == component.StateCreated || g.state == component.StateFailed {
		g.state = component.StateInitialized
	}
	g.setStateGauge()
	g.logger.Info("generator initialized", "backend", g.backend.Name(), "model", g.cfg.Model)
	return nil
}

// Start launches the worker loop. Idempotent while running.
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == component.StateStarted {
		return nil
	}
	if g.state == component.StateCreated {
		if err := g.initLocked(); err != nil {
			return err
		}
	}
	if g.state == component.StateFailed {
		return errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrModelNotReady, g.initErr),
			"Generator", "Start", "backend initialization")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	g.state = component.StateStarted
	g.setStateGauge()
	go g.worker(runCtx, g.done)
	g.logger.Info("generator started")
	return nil
}

// Stop cancels the worker and joins it within the timeout. Queued
// requests that were not picked up are answered with a shutdown error
// by their own contexts. Stopping a stopped generator is a no-op.
func (g *Generator) Stop(timeout time.Duration) error {
	g.mu.Lock()
	if g.state != component.StateStarted {
		g.mu.Unlock()
		return nil
	}
	cancel := g.cancel
	done := g.done
	g.mu.Unlock()

	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		g.logger.Warn("generator worker did not exit in time, forcing stop",
			"timeout", timeout, "error", errors.ErrStopTimeout)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel = nil
	g.done = nil
	g.state = component.StateStopped
	g.setStateGauge()
	g.drainLocked()
	g.logger.Info("generator stopped")
	return nil
}

func (g *Generator) worker(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-g.requests:
			g.handle(ctx, req)
		}
	}
}

// drainLocked answers queued requests that the worker will never pick
// up, so their callers do not wait forever.
func (g *Generator) drainLocked() {
	for {
		select {
		case req := <-g.requests:
			req.resp <- response{err: errors.WrapTransient(
				errors.ErrShuttingDown, "Generator", "Stop", "drain queue")}
		default:
			return
		}
	}
}

// Generate submits a prompt and waits for the worker's response. A
// full queue rejects the request immediately rather than blocking.
func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.WrapInvalid(errors.ErrEmptyPrompt, "Generator", "Generate", "prompt check")
	}

	g.mu.Lock()
	state := g.state
	queue := g.requests
	if maxTokens < 1 {
		maxTokens = g.cfg.MaxTokens
	}
	g.mu.Unlock()

	if state != component.StateStarted || queue == nil {
		return nil, errors.WrapInvalid(errors.ErrNotStarted, "Generator", "Generate", "state check")
	}

	req := &request{
		ctx:       ctx,
		prompt:    prompt,
		maxTokens: maxTokens,
		resp:      make(chan response, 1),
	}
	select {
	case queue <- req:
	default:
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: generation queue is full", errors.ErrResourceExhausted),
			"Generator", "Generate", "enqueue")
	}

	select {
	case r := <-req.resp:
		return r.result, r.err
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "Generator", "Generate", "wait for completion")
	}
}

func (g *Generator) handle(ctx context.Context, req *request) {
	start := time.Now()

	g.mu.Lock()
	cfg := g.cfg
	guidance := g.guidance
	backend := g.backend
	g.mu.Unlock()

	prompt := req.prompt
	temperature := cfg.Temperature
	frequencyPenalty := cfg.FrequencyPenalty
	applied := false
	label := ""

	// Higher classification confidence narrows sampling and nudges the
	// prompt toward the label's concepts.
	if guidance != nil && cfg.GuidanceStrength > 0 {
		if concepts, ok := cfg.SemanticMapping[guidance.Label]; ok && len(concepts) > 0 {
			temperature = math.Max(0.1, temperature-0.2*guidance.Confidence*cfg.GuidanceStrength)
			frequencyPenalty = math.Min(2.0, frequencyPenalty+0.1*guidance.Confidence*cfg.GuidanceStrength)
			prompt = fmt.Sprintf("[Focusing on concepts: %s]\n%s", strings.Join(concepts, ", "), prompt)
			applied = true
			label = guidance.Label
		}
	}

	reqCtx := req.ctx
	if reqCtx == nil {
		reqCtx = ctx
	}
	text, err := backend.Complete(reqCtx, CompletionRequest{
		Prompt:           prompt,
		Model:            cfg.Model,
		MaxTokens:        req.maxTokens,
		Temperature:      temperature,
		TopP:             cfg.TopP,
		FrequencyPenalty: frequencyPenalty,
	})
	duration := time.Since(start)

	if err != nil {
		g.mu.Lock()
		g.errCount++
		g.lastErr = err.Error()
		g.mu.Unlock()
		g.logger.Error("generation failed", "backend", backend.Name(), "error", err)
		if g.metrics != nil {
			g.metrics.GenerationsTotal.WithLabelValues("error").Inc()
		}
		req.resp <- response{err: err}
		return
	}

	result := &Result{
		Text:             text,
		Model:            cfg.Model,
		Temperature:      temperature,
		FrequencyPenalty: frequencyPenalty,
		GuidanceApplied:  applied,
		GuidanceLabel:    label,
		Duration:         duration,
		Timestamp:        time.Now(),
	}

	g.mu.Lock()
	g.history = append(g.history, HistoryEntry{
		Prompt:        req.prompt,
		Text:          text,
		GuidanceLabel: label,
		Timestamp:     result.Timestamp,
	})
	limit := g.cfg.HistoryLimit
	if limit < 1 {
		limit = 50
	}
	if len(g.history) > limit {
		g.history = g.history[len(g.history)-limit:]
	}
	g.mu.Unlock()

	g.generated.Add(1)
	if g.metrics != nil {
		g.metrics.GenerationsTotal.WithLabelValues("ok").Inc()
		g.metrics.GenerationDuration.Observe(duration.Seconds())
	}
	req.resp <- response{result: result}
}

// SetGuidance replaces the neural guidance applied to subsequent
// generations. Nil clears it.
func (g *Generator) SetGuidance(guidance *neuro.NeuralGuidance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.guidance = guidance
}

// History returns a copy of the bounded prompt/response history,
// oldest first.
func (g *Generator) History() []HistoryEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]HistoryEntry(nil), g.history...)
}

func (g *Generator) setStateGauge() {
	if g.metrics == nil {
		return
	}
	v := 0.0
	switch g.state {
	case component.StateStarted:
		v = 1
	case component.StateFailed:
		v = 2
	}
	g.metrics.ComponentState.WithLabelValues("generator").Set(v)
}
