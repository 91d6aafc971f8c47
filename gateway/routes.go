package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
	"github.com/llamasearchai/llamaneuro/errors"
)

// componentStopTimeout bounds Stop calls issued through the API.
const componentStopTimeout = 5 * time.Second

// routes builds the full HTTP mux. Every handler goes through
// instrument so CORS, request IDs, and metrics apply uniformly.
func (s *Server) routes() http.Handler {
	mux := newMethodMux()

	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.instrument(route, h))
	}

	handle("GET /healthz", "/healthz", s.handleHealthz)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	// The websocket upgrade needs the raw ResponseWriter (it hijacks
	// the connection), so it skips the instrumented wrapper; the hub
	// tracks its own client gauge.
	mux.HandleFunc("GET /ws", s.handleWebsocket)

	handle("GET /api/v1/status", "/api/v1/status", s.handleStatus)
	handle("GET /api/v1/config", "/api/v1/config", s.handleGetConfig)
	handle("PUT /api/v1/config", "/api/v1/config", s.handleUpdateConfig)

	handle("POST /api/v1/processor/start", "/api/v1/processor/start", s.handleProcessorStart)
	handle("POST /api/v1/processor/stop", "/api/v1/processor/stop", s.handleProcessorStop)
	handle("POST /api/v1/processor/reset", "/api/v1/processor/reset", s.handleProcessorReset)
	handle("GET /api/v1/processor/status", "/api/v1/processor/status", s.handleProcessorStatus)
	handle("GET /api/v1/processor/snapshot", "/api/v1/processor/snapshot", s.handleProcessorSnapshot)
	handle("POST /api/v1/processor/simulate", "/api/v1/processor/simulate", s.handleProcessorSimulate)
	handle("POST /api/v1/processor/reconfigure", "/api/v1/processor/reconfigure", s.handleProcessorReconfigure)
	handle("POST /api/v1/processor/ingest", "/api/v1/processor/ingest", s.handleProcessorIngest)

	handle("POST /api/v1/generator/start", "/api/v1/generator/start", s.handleGeneratorStart)
	handle("POST /api/v1/generator/stop", "/api/v1/generator/stop", s.handleGeneratorStop)
	handle("GET /api/v1/generator/status", "/api/v1/generator/status", s.handleGeneratorStatus)
	handle("POST /api/v1/generator/generate", "/api/v1/generator/generate", s.handleGenerate)
	handle("GET /api/v1/generator/history", "/api/v1/generator/history", s.handleGeneratorHistory)
	handle("POST /api/v1/generator/settings", "/api/v1/generator/settings", s.handleGeneratorSettings)

	handle("POST /api/v1/neural/generate", "/api/v1/neural/generate", s.handleNeuralGenerate)

	// Preflight for any API path.
	handle("OPTIONS /", "preflight", func(w http.ResponseWriter, r *http.Request) {})

	return mux
}

// handleHealthz aggregates component health. Returns 503 when any
// component is unhealthy so load balancers can react.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	components := map[string]component.HealthStatus{
		"gateway":   s.Health(),
		"processor": s.processor.Health(),
		"generator": s.generator.Health(),
	}
	healthy := true
	for _, h := range components {
		if !h.Healthy {
			healthy = false
		}
	}
	if s.nats != nil && !s.nats.IsHealthy() {
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"healthy":    healthy,
		"components": components,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	uptime := time.Since(s.startTime)
	s.mu.Unlock()

	body := map[string]any{
		"server": map[string]any{
			"uptime_seconds":    uptime.Seconds(),
			"requests_total":    s.requests.Load(),
			"websocket_clients": s.hub.clientCount(),
		},
		"processor": s.processor.Status(),
		"generator": s.generator.Status(),
	}
	if s.nats != nil {
		body["nats"] = s.nats.GetStatus()
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.safeCfg.Get())
}

// handleUpdateConfig replaces the stored configuration. Running
// components keep their current settings until reconfigured through
// their own endpoints.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.safeCfg.Get()
	if err := decodeBody(w, r, cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.safeCfg.Update(cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

// handleProcessorStart launches the processing loop. The loop must
// outlive this request, so it runs under a background context and is
// bounded by its own Stop.
func (s *Server) handleProcessorStart(w http.ResponseWriter, r *http.Request) {
	if err := s.processor.Start(context.Background()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.processor.Status())
}

func (s *Server) handleProcessorStop(w http.ResponseWriter, r *http.Request) {
	if err := s.processor.Stop(componentStopTimeout); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.processor.Status())
}

func (s *Server) handleProcessorReset(w http.ResponseWriter, r *http.Request) {
	if err := s.processor.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.processor.Status())
}

func (s *Server) handleProcessorStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.processor.Status())
}

func (s *Server) handleProcessorSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.processor.Snapshot())
}

type simulateRequest struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
}

func (s *Server) handleProcessorSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	confidence := 0.7
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	if err := s.processor.SetSimulatedLabel(req.Label, confidence); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.processor.Status())
}

// handleProcessorReconfigure applies runtime options with per-key
// validation. Valid keys take effect even when others are rejected, so
// the response always lists the rejected ones.
func (s *Server) handleProcessorReconfigure(w http.ResponseWriter, r *http.Request) {
	var options map[string]any
	if err := decodeBody(w, r, &options); err != nil {
		s.writeError(w, r, err)
		return
	}
	fieldErrs := s.processor.Reconfigure(options)
	s.writeJSON(w, http.StatusOK, reconfigureResponse(options, fieldErrs))
}

func (s *Server) handleGeneratorSettings(w http.ResponseWriter, r *http.Request) {
	var options map[string]any
	if err := decodeBody(w, r, &options); err != nil {
		s.writeError(w, r, err)
		return
	}
	fieldErrs := s.generator.UpdateSettings(options)
	s.writeJSON(w, http.StatusOK, reconfigureResponse(options, fieldErrs))
}

func reconfigureResponse(options map[string]any, fieldErrs []config.FieldError) map[string]any {
	if fieldErrs == nil {
		fieldErrs = []config.FieldError{}
	}
	return map[string]any{
		"applied": len(options) - len(fieldErrs),
		"errors":  fieldErrs,
	}
}

type ingestRequest struct {
	Data [][]float64 `json:"data"`
}

// handleProcessorIngest feeds one signal chunk into the pipeline.
// Rate-limited per client so a misbehaving producer cannot starve the
// processing loop.
func (s *Server) handleProcessorIngest(w http.ResponseWriter, r *http.Request) {
	if !s.limiterFor(r.RemoteAddr).Allow() {
		s.writeError(w, r, errors.WrapTransient(
			errors.ErrRateLimited, "gateway", "Ingest", "per-client ingest limit"))
		return
	}

	var req ingestRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.processor.Ingest(req.Data); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}

func (s *Server) handleGeneratorStart(w http.ResponseWriter, r *http.Request) {
	if err := s.generator.Start(context.Background()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.generator.Status())
}

func (s *Server) handleGeneratorStop(w http.ResponseWriter, r *http.Request) {
	if err := s.generator.Stop(componentStopTimeout); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.generator.Status())
}

func (s *Server) handleGeneratorStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.generator.Status())
}

func (s *Server) handleGeneratorHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"history": s.generator.History(),
	})
}

type generateRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.generator.Generate(r.Context(), req.Prompt, req.MaxTokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleNeuralGenerate is the combined path: the processor's current
// classification steers the generator for this and subsequent calls.
func (s *Server) handleNeuralGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	neural := s.processor.Guidance()
	s.generator.SetGuidance(neural)

	result, err := s.generator.Generate(r.Context(), req.Prompt, req.MaxTokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"result":   result,
		"guidance": neural,
	})
}
