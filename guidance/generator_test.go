package guidance

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/neuro"
)

// captureBackend records the requests it serves.
type captureBackend struct {
	mu       sync.Mutex
	requests []CompletionRequest
	err      error
}

func (c *captureBackend) Name() string { return "capture" }

func (c *captureBackend) Complete(_ context.Context, req CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	return "generated text", nil
}

func (c *captureBackend) last() CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func testGeneratorConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		Backend:          "stub",
		Model:            "gpt-4o-mini",
		APIKeyEnv:        "OPENAI_API_KEY",
		MaxTokens:        64,
		Temperature:      0.7,
		TopP:             0.9,
		FrequencyPenalty: 0.0,
		GuidanceStrength: 0.5,
		SemanticMapping: map[string][]string{
			"left_hand": {"move", "change", "shift", "select"},
			"feet":      {"stop", "pause", "halt", "reduce"},
		},
		HistoryLimit: 5,
		QueueSize:    4,
		Seed:         42,
	}
}

func genDeps() component.Dependencies {
	return component.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func startGenerator(t *testing.T, cfg config.GeneratorConfig, opts ...Option) *Generator {
	t.Helper()
	g := NewGenerator(cfg, genDeps(), opts...)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Stop(0) })
	return g
}

func TestGenerateWithStubBackend(t *testing.T) {
	g := startGenerator(t, testGeneratorConfig())

	res, err := g.Generate(context.Background(), "describe the signal", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
	assert.False(t, res.GuidanceApplied)
	assert.Equal(t, 0.7, res.Temperature)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	g := startGenerator(t, testGeneratorConfig())
	_, err := g.Generate(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, errors.ErrEmptyPrompt)
}

func TestGenerateRequiresRunningWorker(t *testing.T) {
	g := NewGenerator(testGeneratorConfig(), genDeps())
	require.NoError(t, g.Initialize())
	_, err := g.Generate(context.Background(), "hello", 0)
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestGuidanceAdjustsParametersAndPrompt(t *testing.T) {
	backend := &captureBackend{}
	g := startGenerator(t, testGeneratorConfig(), WithBackend(backend))

	g.SetGuidance(&neuro.NeuralGuidance{Label: "left_hand", Confidence: 0.9})
	res, err := g.Generate(context.Background(), "what next", 0)
	require.NoError(t, err)

	assert.True(t, res.GuidanceApplied)
	assert.Equal(t, "left_hand", res.GuidanceLabel)
	// temperature 0.7 - 0.2*0.9*0.5, penalty 0.0 + 0.1*0.9*0.5
	assert.InDelta(t, 0.61, res.Temperature, 1e-9)
	assert.InDelta(t, 0.045, res.FrequencyPenalty, 1e-9)

	sent := backend.last()
	assert.True(t, strings.HasPrefix(sent.Prompt,
		"[Focusing on concepts: move, change, shift, select]\n"))
	assert.True(t, strings.HasSuffix(sent.Prompt, "what next"))
	assert.InDelta(t, 0.61, sent.Temperature, 1e-9)
}

func TestGuidanceSkippedForUnmappedLabel(t *testing.T) {
	backend := &captureBackend{}
	g := startGenerator(t, testGeneratorConfig(), WithBackend(backend))

	g.SetGuidance(&neuro.NeuralGuidance{Label: "rest", Confidence: 0.9})
	res, err := g.Generate(context.Background(), "what next", 0)
	require.NoError(t, err)
	assert.False(t, res.GuidanceApplied)
	assert.Equal(t, "what next", backend.last().Prompt)
}

func TestGuidanceDisabledByZeroStrength(t *testing.T) {
	cfg := testGeneratorConfig()
	cfg.GuidanceStrength = 0
	backend := &captureBackend{}
	g := startGenerator(t, cfg, WithBackend(backend))

	g.SetGuidance(&neuro.NeuralGuidance{Label: "left_hand", Confidence: 0.9})
	res, err := g.Generate(context.Background(), "what next", 0)
	require.NoError(t, err)
	assert.False(t, res.GuidanceApplied)
}

func TestHistoryIsBounded(t *testing.T) {
	g := startGenerator(t, testGeneratorConfig())

	for i := 0; i < 8; i++ {
		_, err := g.Generate(context.Background(), "prompt", 0)
		require.NoError(t, err)
	}

	history := g.History()
	require.Len(t, history, 5, "history must be trimmed to the limit")
	assert.Equal(t, "prompt", history[0].Prompt)
}

func TestUpdateSettingsPartialSuccess(t *testing.T) {
	g := NewGenerator(testGeneratorConfig(), genDeps())
	require.NoError(t, g.Initialize())

	errs := g.UpdateSettings(map[string]any{
		"temperature":       1.2,
		"guidance_strength": 9.0,
		"mystery":           true,
	})
	require.Len(t, errs, 2)

	status := g.Status()
	assert.Equal(t, 1.2, status.Temperature)
	assert.Equal(t, 0.5, status.GuidanceStrength, "invalid value must not be applied")
}

func TestIdempotentLifecycle(t *testing.T) {
	g := NewGenerator(testGeneratorConfig(), genDeps())
	require.NoError(t, g.Initialize())

	ctx := context.Background()
	require.NoError(t, g.Start(ctx))
	require.NoError(t, g.Start(ctx))
	require.NoError(t, g.Stop(0))
	require.NoError(t, g.Stop(0))
	assert.Equal(t, "stopped", g.Status().State)
}

func TestMissingAPIKeyFailsInitialization(t *testing.T) {
	cfg := testGeneratorConfig()
	cfg.Backend = "openai"
	cfg.APIKeyEnv = "LLAMANEURO_TEST_MISSING_KEY"

	g := NewGenerator(cfg, genDeps())
	err := g.Initialize()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
	assert.Equal(t, "failed", g.Status().State)

	err = g.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrModelNotReady)
}

func TestBackendErrorIsReportedNotFatal(t *testing.T) {
	backend := &captureBackend{err: errors.WrapTransient(
		errors.ErrBackendUnavailable, "capture", "Complete", "forced failure")}
	g := startGenerator(t, testGeneratorConfig(), WithBackend(backend))

	_, err := g.Generate(context.Background(), "prompt", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackendUnavailable)

	// The worker survives a failed generation.
	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()
	res, err := g.Generate(context.Background(), "prompt", 0)
	require.NoError(t, err)
	assert.Equal(t, "generated text", res.Text)

	status := g.Status()
	assert.Equal(t, 1, status.ErrorCount)
	assert.NotEmpty(t, status.LastError)
}

func TestGenerateTimesOutWithCallerContext(t *testing.T) {
	slow := &blockingBackend{release: make(chan struct{})}
	g := startGenerator(t, testGeneratorConfig(), WithBackend(slow))
	defer close(slow.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Generate(ctx, "prompt", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingBackend struct {
	release chan struct{}
}

func (b *blockingBackend) Name() string { return "blocking" }

func (b *blockingBackend) Complete(ctx context.Context, _ CompletionRequest) (string, error) {
	select {
	case <-b.release:
		return "late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
