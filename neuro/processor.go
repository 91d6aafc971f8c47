// Package neuro implements the signal pipeline: a rolling multi-channel
// window fed by a simulator or an ingest queue, driven by a single
// background loop that extracts features, encodes them, classifies the
// embedding, and publishes the result as one atomically swapped
// snapshot for any number of concurrent readers.
package neuro

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/metric"
	"github.com/llamasearchai/llamaneuro/natsclient"
	"github.com/llamasearchai/llamaneuro/neuro/classifier"
	"github.com/llamasearchai/llamaneuro/neuro/encoder"
	"github.com/llamasearchai/llamaneuro/neuro/features"
	"github.com/llamasearchai/llamaneuro/pkg/buffer"
)

// DefaultSubject is the NATS subject classifications are published to.
const DefaultSubject = "neuro.classification"

// Option configures a Processor at construction time.
type Option func(*Processor)

// WithSubject overrides the NATS publish subject.
func WithSubject(subject string) Option {
	return func(p *Processor) {
		if subject != "" {
			p.subject = subject
		}
	}
}

// WithoutEncoder disables the transformer encoder so the pipeline runs
// in fallback mode: the classifier consumes the flattened feature
// matrix and snapshots carry no attention matrix.
func WithoutEncoder() Option {
	return func(p *Processor) { p.encoderDisabled = true }
}

// pipeline bundles everything rebuilt together on (re)initialization.
// Building into a separate value lets reconfiguration validate the new
// model stack before swapping it in, so a running pipeline is never
// torn down by a bad reconfigure.
type pipeline struct {
	window *SignalBuffer
	sim    *Simulator
	enc    SequenceEncoder
	clf    *classifier.Classifier
	queue  buffer.Buffer[[][]float64]
	bands  []string // stable band order for the encoder sequence
}

// Processor owns the signal window and runs the
// ingest -> extract -> encode -> classify cycle on its own goroutine.
// All mutation goes through the single mutex; readers take the
// published snapshot through an atomic pointer and never contend with
// the tick computation.
type Processor struct {
	mu sync.Mutex

	cfg     config.ProcessorConfig
	logger  *slog.Logger
	metrics *metric.Metrics
	nats    *natsclient.Client
	subject string

	encoderDisabled bool

	pipe    *pipeline
	state   component.State
	initErr error

	errCount  int
	lastErr   string
	ticks     atomic.Uint64
	published atomic.Pointer[Snapshot]

	cancel context.CancelFunc
	done   chan struct{}

	startTime time.Time
}

// New creates the processor. Call Initialize (or Start, which
// initializes on first use) before ingesting data.
func New(cfg config.ProcessorConfig, deps component.Dependencies, opts ...Option) *Processor {
	p := &Processor{
		cfg:       cloneProcessorConfig(cfg),
		logger:    deps.GetLoggerWithComponent("processor"),
		nats:      deps.NATSClient,
		subject:   DefaultSubject,
		state:     component.StateCreated,
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		p.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	for _, opt := range opts {
		opt(p)
	}
	p.publishLocked(nil, nil, nil)
	return p
}

func cloneProcessorConfig(cfg config.ProcessorConfig) config.ProcessorConfig {
	out := cfg
	out.Electrodes = append([]string(nil), cfg.Electrodes...)
	out.Classes = append([]string(nil), cfg.Classes...)
	out.FrequencyBands = make(map[string][2]float64, len(cfg.FrequencyBands))
	for name, band := range cfg.FrequencyBands {
		out.FrequencyBands[name] = band
	}
	return out
}

// buildPipeline constructs the window, simulator, models, and ingest
// queue for cfg. A malformed weight file fails construction; a missing
// one falls back to seeded initialization inside the model packages.
func buildPipeline(cfg config.ProcessorConfig, encoderDisabled bool) (*pipeline, error) {
	if fieldErrs := cfg.Validate(); len(fieldErrs) > 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, fieldErrs),
			"Processor", "buildPipeline", "config validation")
	}

	window, err := NewSignalBuffer(len(cfg.Electrodes), cfg.WindowSamples())
	if err != nil {
		return nil, err
	}

	bands := make([]string, 0, len(cfg.FrequencyBands))
	for name := range cfg.FrequencyBands {
		bands = append(bands, name)
	}
	sort.Strings(bands)

	var enc SequenceEncoder
	if encoderDisabled {
		enc = &fallbackEncoder{featureDim: len(bands)}
	} else {
		built, err := encoder.New(encoder.Config{
			InputDim:    len(bands),
			HiddenDim:   cfg.EncoderHiddenDim,
			Heads:       cfg.EncoderHeads,
			Layers:      cfg.EncoderLayers,
			WeightsPath: cfg.EncoderWeightsPath,
			Seed:        cfg.Seed,
		})
		if err != nil {
			return nil, err
		}
		enc = &transformerEncoder{enc: built}
	}

	clf, err := classifier.New(classifier.Config{
		InputDim:    enc.OutputDim(len(cfg.Electrodes)),
		HiddenDim:   cfg.ClassifierHiddenDim,
		Classes:     cfg.Classes,
		WeightsPath: cfg.ClassifierWeightsPath,
		Seed:        cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	queue, err := buffer.NewCircularBuffer[[][]float64](
		cfg.IngestQueueSize,
		buffer.WithOverflowPolicy[[][]float64](buffer.DropOldest),
	)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		window: window,
		sim:    NewSimulator(cfg.SamplingRate, cfg.Electrodes, cfg.Seed),
		enc:    enc,
		clf:    clf,
		queue:  queue,
		bands:  bands,
	}, nil
}

// Initialize builds the model stack. On failure the processor enters
// the failed state and Start keeps failing until a reconfiguration
// supplies a working configuration.
func (p *Processor) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initLocked()
}

func (p *Processor) initLocked() error {
	pipe, err := buildPipeline(p.cfg, p.encoderDisabled)
	if err != nil {
		p.state = component.StateFailed
		p.initErr = err
		p.lastErr = err.Error()
		p.setStateGauge()
		p.logger.Error("pipeline initialization failed", "error", err)
		p.publishLocked(nil, nil, nil)
		return err
	}
	if p.pipe != nil && p.pipe.queue != nil {
		_ = p.pipe.queue.Close()
	}
	p.pipe = pipe
	p.initErr = nil
	if p.state == component.StateCreated || p.state == component.StateFailed {
		p.state = component.StateInitialized
	}
	p.setStateGauge()
	p.publishLocked(unknownClassification(), nil, nil)
	p.logger.Info("pipeline initialized",
		"channels", len(p.cfg.Electrodes),
		"window_samples", p.cfg.WindowSamples(),
		"bands", len(pipe.bands),
		"classes", len(p.cfg.Classes),
		"encoder", !p.encoderDisabled,
		"simulated", p.cfg.Simulated)
	return nil
}

// Start launches the pipeline loop. Idempotent: starting a running
// processor returns nil without spawning a second loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == component.StateStarted {
		return nil
	}
	if p.state == component.StateCreated {
		if err := p.initLocked(); err != nil {
			return err
		}
	}
	if p.state == component.StateFailed {
		return errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrModelNotReady, p.initErr),
			"Processor", "Start", "model initialization")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = component.StateStarted
	p.setStateGauge()
	p.carryForwardLocked()

	go p.run(runCtx, p.done)
	p.logger.Info("processor started", "update_interval", p.cfg.UpdateInterval)
	return nil
}

// Stop signals the loop and joins it within the timeout (the
// configured stop timeout when zero). A loop that does not exit in
// time is logged as a forced stop, not escalated to the caller.
// Stopping a stopped processor is a no-op.
func (p *Processor) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.state != component.StateStarted {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	done := p.done
	if timeout <= 0 {
		timeout = time.Duration(p.cfg.StopTimeoutSeconds * float64(time.Second))
	}
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("pipeline loop did not exit in time, forcing stop",
			"timeout", timeout, "error", errors.ErrStopTimeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel = nil
	p.done = nil
	p.state = component.StateStopped
	p.setStateGauge()
	p.carryForwardLocked()
	p.logger.Info("processor stopped")
	return nil
}

// Reset zero-fills the window, drops queued ingest data, and clears
// the classification to unknown in one atomic publish. Valid while
// stopped or running; a failed processor must be reconfigured first.
func (p *Processor) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == component.StateFailed || p.pipe == nil {
		return errors.WrapInvalid(errors.ErrModelNotReady, "Processor", "Reset", "pipeline not initialized")
	}
	p.pipe.window.Zero()
	p.pipe.queue.Clear()
	p.publishLocked(unknownClassification(), nil, nil)
	p.logger.Info("processor reset")
	return nil
}

// Ingest queues an externally acquired chunk ([channels][samples]).
// Only valid while running with the simulator disabled; the chunk
// shape must match the configured channel count. The queue drops its
// oldest entry on overflow rather than blocking the caller.
func (p *Processor) Ingest(chunk [][]float64) error {
	p.mu.Lock()
	state := p.state
	simulated := p.cfg.Simulated
	channels := len(p.cfg.Electrodes)
	var queue buffer.Buffer[[][]float64]
	if p.pipe != nil {
		queue = p.pipe.queue
	}
	p.mu.Unlock()

	if state != component.StateStarted || queue == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: processor is not running", errors.ErrIngestRejected),
			"Processor", "Ingest", "state check")
	}
	if simulated {
		return errors.WrapInvalid(
			fmt.Errorf("%w: simulated source is active", errors.ErrIngestRejected),
			"Processor", "Ingest", "mode check")
	}
	if len(chunk) != channels {
		return errors.WrapInvalid(
			fmt.Errorf("%w: chunk has %d channels, configured %d",
				errors.ErrShapeMismatch, len(chunk), channels),
			"Processor", "Ingest", "shape check")
	}
	width := -1
	for ch, row := range chunk {
		if len(row) == 0 {
			return errors.WrapInvalid(errors.ErrEmptyWindow, "Processor", "Ingest", "empty chunk")
		}
		if width == -1 {
			width = len(row)
		} else if len(row) != width {
			return errors.WrapInvalid(
				fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d",
					errors.ErrShapeMismatch, ch, len(row), width),
				"Processor", "Ingest", "ragged chunk")
		}
	}

	copied := make([][]float64, len(chunk))
	for ch, row := range chunk {
		copied[ch] = append([]float64(nil), row...)
	}
	return queue.Write(copied)
}

// SetSimulatedLabel sets the class the simulator biases toward. An
// empty label clears the target. Confidence is clamped to [0, 1].
func (p *Processor) SetSimulatedLabel(label string, confidence float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Simulated {
		return errors.WrapInvalid(errors.ErrNotSimulated, "Processor", "SetSimulatedLabel", "mode check")
	}
	if p.pipe == nil {
		return errors.WrapInvalid(errors.ErrModelNotReady, "Processor", "SetSimulatedLabel", "pipeline not initialized")
	}
	if label != "" && !containsLabel(p.cfg.Classes, label) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q not in %v", errors.ErrUnknownLabel, label, p.cfg.Classes),
			"Processor", "SetSimulatedLabel", "label check")
	}
	p.pipe.sim.SetTarget(label, confidence)
	return nil
}

// Snapshot returns the last published pipeline view. The returned
// value is immutable; a new snapshot replaces it wholesale each tick.
func (p *Processor) Snapshot() *Snapshot {
	return p.published.Load()
}

// Guidance projects the latest classification and attention matrix for
// the text-generation collaborator. Returns nil before the first
// classification.
func (p *Processor) Guidance() *NeuralGuidance {
	s := p.published.Load()
	if s == nil || s.Classification == nil {
		return nil
	}
	return &NeuralGuidance{
		Label:      s.Classification.Label,
		Confidence: s.Classification.Confidence,
		Attention:  s.Attention,
	}
}

func containsLabel(classes []string, label string) bool {
	for _, c := range classes {
		if c == label {
			return true
		}
	}
	return false
}

func unknownClassification() *Classification {
	return &Classification{Label: "unknown", Timestamp: time.Now()}
}

// publishLocked swaps in a fresh snapshot. Callers hold p.mu, so the
// state fields and the classification are captured consistently.
func (p *Processor) publishLocked(cls *Classification, bandPowers map[string][]float64, attention [][]float64) {
	p.published.Store(&Snapshot{
		Active:         p.state == component.StateStarted,
		State:          p.state.String(),
		Simulated:      p.cfg.Simulated,
		SamplingRate:   p.cfg.SamplingRate,
		Electrodes:     append([]string(nil), p.cfg.Electrodes...),
		Classes:        append([]string(nil), p.cfg.Classes...),
		LastUpdate:     time.Now(),
		Classification: cls,
		BandPowers:     bandPowers,
		Attention:      attention,
		TickCount:      p.ticks.Load(),
		ErrorCount:     p.errCount,
		LastError:      p.lastErr,
	})
}

// carryForwardLocked re-publishes the previous results under the
// current lifecycle state, so start/stop transitions do not wipe the
// last classification.
func (p *Processor) carryForwardLocked() {
	prev := p.published.Load()
	if prev == nil {
		p.publishLocked(nil, nil, nil)
		return
	}
	p.publishLocked(prev.Classification, prev.BandPowers, prev.Attention)
}

func (p *Processor) setStateGauge() {
	if p.metrics == nil {
		return
	}
	v := 0.0
	switch p.state {
	case component.StateStarted:
		v = 1
	case component.StateFailed:
		v = 2
	}
	p.metrics.ComponentState.WithLabelValues("processor").Set(v)
}

// run paces the tick loop. The interval is re-read after each tick so
// reconfiguring update_interval takes effect without a restart.
func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := p.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				p.recordTickError(err)
			}
			if next := p.tickInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (p *Processor) tickInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := time.Duration(p.cfg.UpdateInterval * float64(time.Second))
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	return d
}

// tick runs one acquisition -> inference cycle. Errors are returned to
// the loop for logging and counting; a failed tick never stops the
// loop, the ticker interval is the cooldown.
//
// The mutex is held only to move data in and out: pull a chunk and
// copy the window under lock, run feature extraction and the models
// unlocked, then re-lock to publish. Status, Ingest, and Reconfigure
// never wait behind inference. If the pipeline was swapped while the
// models ran, the stale result is discarded.
func (p *Processor) tick(ctx context.Context) error {
	start := time.Now()

	p.mu.Lock()
	if p.pipe == nil || p.state != component.StateStarted {
		p.mu.Unlock()
		return nil
	}
	pipe := p.pipe
	cfg := p.cfg

	var chunk [][]float64
	if cfg.Simulated {
		n := int(float64(cfg.SamplingRate)*cfg.UpdateInterval + 0.5)
		if n < 1 {
			n = 1
		}
		chunk = pipe.sim.NextChunk(n)
	} else {
		queued, ok := pipe.queue.Read()
		if !ok {
			// No data this cycle.
			p.mu.Unlock()
			return nil
		}
		chunk = queued
	}

	if err := pipe.window.Push(chunk); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("buffer: %w", err)
	}
	window := pipe.window.Data()
	p.mu.Unlock()

	set, err := features.Extract(window, features.Options{
		SamplingRate:       cfg.SamplingRate,
		FrequencyBands:     cfg.FrequencyBands,
		Temporal:           true,
		Spectral:           true,
		Connectivity:       cfg.UseConnectivity,
		ConnectivityMethod: cfg.ConnectivityMethod,
	})
	if err != nil {
		return fmt.Errorf("features: %w", err)
	}

	channels := len(cfg.Electrodes)
	seq := make([][]float64, channels)
	bandPowers := make(map[string][]float64, len(pipe.bands))
	for ch := range seq {
		seq[ch] = make([]float64, len(pipe.bands))
	}
	for j, band := range pipe.bands {
		values := set["band_"+band]
		bandPowers[band] = values
		for ch := 0; ch < channels; ch++ {
			seq[ch][j] = values[ch]
		}
	}

	embedding, attention, err := pipe.enc.Encode(seq)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	result, err := pipe.clf.Classify(embedding)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	p.mu.Lock()
	if p.pipe != pipe || p.state != component.StateStarted {
		// Reconfigured or stopped mid-inference; the result belongs
		// to the old pipeline.
		p.mu.Unlock()
		return nil
	}

	label := result.Label
	confidence := result.Confidence
	probs := result.Probabilities
	if p.cfg.Simulated && !pipe.clf.Pretrained() {
		if target, targetConf := pipe.sim.Target(); target != "" {
			label, confidence, probs = p.biasTowardTargetLocked(target, targetConf)
		}
	}

	probMap := make(map[string]float64, len(p.cfg.Classes))
	for i, class := range p.cfg.Classes {
		probMap[class] = probs[i]
	}
	cls := &Classification{
		Label:         label,
		Confidence:    confidence,
		Probabilities: probMap,
		Timestamp:     time.Now(),
	}

	p.ticks.Add(1)
	p.publishLocked(cls, bandPowers, attention)
	natsClient := p.nats
	subject := p.subject
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.TicksTotal.Inc()
		p.metrics.ClassificationsTotal.WithLabelValues(label).Inc()
		p.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	}
	if natsClient != nil {
		payload, err := json.Marshal(cls)
		if err == nil {
			if err := natsClient.Publish(ctx, subject, payload); err != nil {
				p.logger.Debug("classification publish skipped", "subject", subject, "error", err)
			}
		}
	}
	return nil
}

// biasTowardTargetLocked replaces the untrained classifier's output
// with a distribution centered on the simulator's target: the target
// class gets the configured confidence as weight, every other class a
// small jittered floor, normalized to sum to one. Only used with
// seeded (untrained) weights in simulated mode.
func (p *Processor) biasTowardTargetLocked(target string, confidence float64) (string, float64, []float64) {
	classes := p.cfg.Classes
	probs := make([]float64, len(classes))
	sum := 0.0
	for i, class := range classes {
		if class == target {
			probs[i] = math.Max(confidence, 0.15)
		} else {
			probs[i] = 0.1 + 0.05*p.pipe.sim.rng.Float64()
		}
		sum += probs[i]
	}
	best := 0
	for i := range probs {
		probs[i] /= sum
		if probs[i] > probs[best] {
			best = i
		}
	}
	return classes[best], probs[best], probs
}

func (p *Processor) recordTickError(err error) {
	p.mu.Lock()
	p.errCount++
	p.lastErr = err.Error()
	p.mu.Unlock()

	p.logger.Error("tick failed", "error", err)
	if p.metrics != nil {
		p.metrics.ErrorsTotal.WithLabelValues("processor", errors.Classify(err).String()).Inc()
	}
}
