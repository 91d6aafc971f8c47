package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
	"github.com/llamasearchai/llamaneuro/guidance"
	"github.com/llamasearchai/llamaneuro/neuro"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.IngestRateLimit = 1000
	cfg.Server.IngestBurst = 100

	cfg.Processor.SamplingRate = 100
	cfg.Processor.BufferDuration = 0.5
	cfg.Processor.UpdateInterval = 0.005
	cfg.Processor.Electrodes = []string{"Fp1", "Fp2", "C3", "Cz", "C4"}
	cfg.Processor.FrequencyBands = map[string][2]float64{
		"alpha": {8, 13},
		"beta":  {13, 30},
	}
	cfg.Processor.EncoderHiddenDim = 8
	cfg.Processor.EncoderHeads = 2
	cfg.Processor.EncoderLayers = 1
	cfg.Processor.ClassifierHiddenDim = 8
	cfg.Processor.IngestQueueSize = 8
	cfg.Processor.StopTimeoutSeconds = 2

	cfg.Generator.MaxTokens = 16
	cfg.Generator.HistoryLimit = 10
	cfg.Generator.QueueSize = 4
	cfg.Generator.Seed = 1
	return cfg
}

func testDeps() component.Dependencies {
	return component.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// startGateway boots a full gateway on an ephemeral port with a
// processor and generator that are created but not started.
func startGateway(t *testing.T, cfg *config.Config) (*Server, string) {
	t.Helper()
	deps := testDeps()
	processor := neuro.New(cfg.Processor, deps)
	generator := guidance.NewGenerator(cfg.Generator, deps)
	t.Cleanup(func() {
		_ = processor.Stop(0)
		_ = generator.Stop(time.Second)
	})

	srv := NewServer(config.NewSafeConfig(cfg), processor, generator, deps)
	require.NoError(t, srv.Initialize())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() { _ = srv.Stop(2 * time.Second) })

	return srv, "http://" + srv.Addr()
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStatusEndpoint(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp, err := http.Get(base + "/api/v1/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeResponse(t, resp)
	proc, ok := body["processor"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "created", proc["state"])
	gen, ok := body["generator"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "created", gen["state"])
	assert.Contains(t, body, "server")
}

func TestProcessorLifecycleOverHTTP(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp := postJSON(t, base+"/api/v1/processor/start", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.Equal(t, "started", body["state"])

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/v1/processor/snapshot")
		if err != nil {
			return false
		}
		snap := decodeResponse(t, resp)
		ticks, _ := snap["tick_count"].(float64)
		return ticks >= 3 && snap["classification"] != nil
	}, 10*time.Second, 10*time.Millisecond)

	resp = postJSON(t, base+"/api/v1/processor/stop", map[string]any{})
	body = decodeResponse(t, resp)
	assert.Equal(t, "stopped", body["state"])
}

func TestSimulateEndpointValidation(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp := postJSON(t, base+"/api/v1/processor/start", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/api/v1/processor/simulate",
		map[string]any{"label": "levitate"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.Contains(t, body["error"], "not in")
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])

	resp = postJSON(t, base+"/api/v1/processor/simulate",
		map[string]any{"label": "feet", "confidence": 0.9})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeResponse(t, resp)
	assert.Equal(t, "feet", body["simulated_label"])
}

func TestReconfigureEndpointPartialSuccess(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp := postJSON(t, base+"/api/v1/processor/reconfigure", map[string]any{
		"sampling_rate": -5,
		"bogus_option":  true,
		"classes":       []string{"up", "down", "rest"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)

	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errs, 2)

	resp, err := http.Get(base + "/api/v1/processor/status")
	require.NoError(t, err)
	status := decodeResponse(t, resp)
	classes, ok := status["classes"].([]any)
	require.True(t, ok)
	assert.Len(t, classes, 3)
}

func TestIngestRejectedAndRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Server.IngestRateLimit = 1
	cfg.Server.IngestBurst = 1
	_, base := startGateway(t, cfg)

	chunk := make([][]float64, 5)
	for i := range chunk {
		chunk[i] = make([]float64, 4)
	}

	// Processor not running, so the first request is rejected as
	// invalid; the second trips the per-client limiter.
	resp := postJSON(t, base+"/api/v1/processor/ingest", map[string]any{"data": chunk})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/api/v1/processor/ingest", map[string]any{"data": chunk})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.Contains(t, body["error"], "rate limited")
}

func TestGenerateEndpoint(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp := postJSON(t, base+"/api/v1/generator/start", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/api/v1/generator/generate",
		map[string]any{"prompt": "describe the signal"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)
	text, _ := body["text"].(string)
	assert.NotEmpty(t, text)

	resp = postJSON(t, base+"/api/v1/generator/generate", map[string]any{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(base + "/api/v1/generator/history")
	require.NoError(t, err)
	history := decodeResponse(t, resp)
	entries, ok := history["history"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)
}

func TestNeuralGenerateAppliesGuidance(t *testing.T) {
	srv, base := startGateway(t, testConfig())

	resp := postJSON(t, base+"/api/v1/processor/start", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = postJSON(t, base+"/api/v1/generator/start", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/api/v1/processor/simulate",
		map[string]any{"label": "feet", "confidence": 0.95})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		g := srv.processor.Guidance()
		return g != nil && g.Label == "feet"
	}, 10*time.Second, 10*time.Millisecond)

	resp = postJSON(t, base+"/api/v1/neural/generate",
		map[string]any{"prompt": "what should I do next"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["guidance_applied"])
	assert.Equal(t, "feet", result["guidance_label"])

	g, ok := body["guidance"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "feet", g["label"])
}

func TestGeneratorSettingsEndpoint(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp := postJSON(t, base+"/api/v1/generator/settings", map[string]any{
		"temperature": 1.2,
		"max_tokens":  -3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)
	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errs, 1)

	resp, err := http.Get(base + "/api/v1/generator/status")
	require.NoError(t, err)
	status := decodeResponse(t, resp)
	assert.InDelta(t, 1.2, status["temperature"], 1e-9)
}

func TestConfigEndpoints(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp, err := http.Get(base + "/api/v1/config")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decodeResponse(t, resp)
	assert.Contains(t, cfg, "processor")

	update := testConfig()
	update.Server.Port = 9000
	update.Generator.Temperature = 1.5
	data, err := json.Marshal(update)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, base+"/api/v1/config", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/api/v1/config")
	require.NoError(t, err)
	cfg = decodeResponse(t, resp)
	gen, ok := cfg["generator"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 1.5, gen["temperature"], 1e-9)

	// An invalid config is rejected wholesale.
	update.Processor.SamplingRate = -1
	data, err = json.Marshal(update)
	require.NoError(t, err)
	req, err = http.NewRequest(http.MethodPut, base+"/api/v1/config", bytes.NewReader(data))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthzReflectsComponentState(t *testing.T) {
	_, base := startGateway(t, testConfig())

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.Equal(t, true, body["healthy"])

	components, ok := body["components"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, components, "gateway")
	assert.Contains(t, components, "processor")
	assert.Contains(t, components, "generator")
}

func TestCORSHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"http://allowed.example"}
	_, base := startGateway(t, cfg)

	req, err := http.NewRequest(http.MethodOptions, base+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://allowed.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://allowed.example",
		resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, base+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	srv, base := startGateway(t, testConfig())

	resp := postJSON(t, base+"/api/v1/processor/start", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	wsURL := fmt.Sprintf("ws://%s/ws", srv.Addr())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Read a few frames; each must be a full snapshot document.
	sawClassification := false
	for i := 0; i < 10 && !sawClassification; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var snap map[string]any
		require.NoError(t, json.Unmarshal(data, &snap))
		assert.Contains(t, snap, "state")
		if snap["classification"] != nil {
			sawClassification = true
		}
	}
	assert.True(t, sawClassification)
}

func TestFanoutFrameReachesWebsocketClients(t *testing.T) {
	srv, _ := startGateway(t, testConfig())

	wsURL := fmt.Sprintf("ws://%s/ws", srv.Addr())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.hub.clientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Frames arriving on the classification subject are relayed to
	// websocket clients byte for byte, without a re-marshal. Skip the
	// greeting snapshot queued at connect time.
	frame := []byte(`{"state":"started","classification":{"label":"feet","confidence":0.9}}`)
	srv.fanoutFrame(context.Background(), frame)

	relayed := false
	for i := 0; i < 5 && !relayed; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		relayed = bytes.Equal(data, frame)
	}
	assert.True(t, relayed)
}

func TestGreetAfterHubClosedDoesNotPanic(t *testing.T) {
	h := newHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil,
		func(*http.Request) bool { return true })

	c := &wsClient{send: make(chan []byte, 1)}
	require.True(t, h.register(c))
	h.closeAll()

	// The send channel is closed once c leaves the map, so a late
	// greeting must notice the removal instead of writing to it.
	h.greet(c, []byte(`{}`))
	assert.Equal(t, 0, h.clientCount())
}

func TestIdempotentGatewayLifecycle(t *testing.T) {
	srv, _ := startGateway(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, srv.Start(ctx))
	require.NoError(t, srv.Stop(2*time.Second))
	require.NoError(t, srv.Stop(2*time.Second))
}

func TestRequestIDPropagation(t *testing.T) {
	_, base := startGateway(t, testConfig())

	req, err := http.NewRequest(http.MethodGet, base+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(base + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
