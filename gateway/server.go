// Package gateway exposes the processor and generator over HTTP: a
// versioned REST API, a websocket stream of classification snapshots,
// Prometheus metrics, and a health endpoint.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/llamasearchai/llamaneuro/component"
	"github.com/llamasearchai/llamaneuro/config"
	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/guidance"
	"github.com/llamasearchai/llamaneuro/metric"
	"github.com/llamasearchai/llamaneuro/natsclient"
	"github.com/llamasearchai/llamaneuro/neuro"
)

// broadcastInterval bounds how often the websocket hub polls for a new
// snapshot. Clients never see updates faster than the processor ticks.
const broadcastInterval = 100 * time.Millisecond

// Server is the HTTP gateway component. It owns the listener and the
// websocket hub, and routes API calls to the processor and generator.
type Server struct {
	cfg     config.ServerConfig
	safeCfg *config.SafeConfig
	logger  *slog.Logger
	metrics *metric.Metrics
	nats    *natsclient.Client
	subject string

	metricsHandler http.Handler

	processor *neuro.Processor
	generator *guidance.Generator

	hub *hub

	mu         sync.Mutex
	state      component.State
	listener   net.Listener
	httpServer *http.Server
	cancel     context.CancelFunc
	group      *errgroup.Group
	subscribed bool
	startTime  time.Time
	activity   time.Time

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	requests atomic.Uint64
	failures atomic.Uint64
}

// NewServer creates the gateway. The SafeConfig is shared with main so
// config reads and updates through the API stay consistent.
func NewServer(safeCfg *config.SafeConfig, processor *neuro.Processor, generator *guidance.Generator, deps component.Dependencies) *Server {
	cfg := safeCfg.Get()
	subject := cfg.NATS.Subject
	if subject == "" {
		subject = neuro.DefaultSubject
	}
	s := &Server{
		cfg:       cfg.Server,
		safeCfg:   safeCfg,
		logger:    deps.GetLoggerWithComponent("gateway"),
		nats:      deps.NATSClient,
		subject:   subject,
		processor: processor,
		generator: generator,
		state:     component.StateCreated,
		limiters:  make(map[string]*rate.Limiter),
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
		s.metricsHandler = deps.MetricsRegistry.Handler()
	}
	s.hub = newHub(s.logger, s.metrics, s.checkOrigin)
	return s
}

// Addr returns the bound listen address, or "" before Start. A
// configured port of 0 picks an ephemeral port, so tests read the
// address back here.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Initialize builds the router and the http.Server. Idempotent.
func (s *Server) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == component.StateInitialized || s.state == component.StateStarted {
		return nil
	}

	s.state = component.StateInitialized
	s.setStateGauge()
	return nil
}

// Start binds the listener and begins serving. Idempotent.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case component.StateStarted:
		return nil
	case component.StateCreated:
		s.mu.Unlock()
		err := s.Initialize()
		s.mu.Lock()
		if err != nil {
			return err
		}
	case component.StateFailed:
		return errors.WrapFatal(errors.ErrModelNotReady, "gateway", "Start", "server failed, reconfigure before restart")
	}

	// An http.Server cannot serve again after Shutdown, so a restart
	// gets a fresh one and the hub accepts clients again.
	if s.state == component.StateStopped || s.httpServer == nil {
		s.httpServer = &http.Server{
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		s.hub.reopen()
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.state = component.StateFailed
		s.setStateGauge()
		return errors.WrapFatal(err, "gateway", "Start", "bind "+addr)
	}
	s.listener = ln

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	s.group = group

	httpServer := s.httpServer
	group.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			return errors.WrapFatal(err, "gateway", "Serve", "http server")
		}
		return nil
	})
	// With a NATS client the hub fans out the frames the processor
	// publishes; without one (or if the subscription fails) it falls
	// back to polling the processor for fresh snapshots.
	feedFromNATS := false
	if s.nats != nil {
		if s.subscribed {
			feedFromNATS = true
		} else if err := s.nats.Subscribe(runCtx, s.subject, s.fanoutFrame); err != nil {
			s.logger.Warn("nats subscribe failed, polling snapshots instead",
				"subject", s.subject, "error", err)
		} else {
			s.subscribed = true
			feedFromNATS = true
			s.logger.Info("streaming snapshots from nats", "subject", s.subject)
		}
	}
	if !feedFromNATS {
		group.Go(func() error {
			s.broadcastLoop(groupCtx)
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Stop serving if the caller's context ends first.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-groupCtx.Done():
		}
	}()

	s.state = component.StateStarted
	s.startTime = time.Now()
	s.setStateGauge()
	s.logger.Info("gateway listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down, waiting up to timeout for in-flight
// requests and the websocket hub to drain.
func (s *Server) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	s.mu.Lock()
	if s.state != component.StateStarted {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	group := s.group
	s.state = component.StateStopped
	s.setStateGauge()
	s.mu.Unlock()

	cancel()
	s.hub.closeAll()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("gateway shutdown error", "error", err)
		}
	case <-time.After(timeout):
		s.logger.Warn("gateway stop timed out", "timeout", timeout,
			"error", errors.ErrStopTimeout.Error())
	}

	s.logger.Info("gateway stopped")
	return nil
}

// broadcastLoop pushes a fresh snapshot to websocket clients whenever
// the published classification advances.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	var lastUpdate time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.processor.Snapshot()
			if snap == nil || !snap.LastUpdate.After(lastUpdate) {
				continue
			}
			lastUpdate = snap.LastUpdate
			s.hub.broadcastSnapshot(snap)
		}
	}
}

// fanoutFrame relays a published classification frame straight to the
// websocket clients. The frame is already the JSON the processor put
// on the wire, so no re-marshal happens here.
func (s *Server) fanoutFrame(_ context.Context, data []byte) {
	s.hub.broadcastRaw(data)
}

func (s *Server) touch() {
	s.mu.Lock()
	s.activity = time.Now()
	s.mu.Unlock()
}

// checkOrigin implements the websocket origin policy using the same
// allowlist as the CORS middleware.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.originAllowed(origin)
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// limiterFor returns the per-client ingest rate limiter, creating one
// on first use. Keyed by remote IP without port.
func (s *Server) limiterFor(remoteAddr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	lim, ok := s.limiters[host]
	if !ok {
		limit := rate.Limit(s.cfg.IngestRateLimit)
		if limit <= 0 {
			limit = rate.Inf
		}
		burst := s.cfg.IngestBurst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(limit, burst)
		s.limiters[host] = lim
	}
	return lim
}

func (s *Server) setStateGauge() {
	if s.metrics == nil {
		return
	}
	var v float64
	switch s.state {
	case component.StateStarted:
		v = 1
	case component.StateFailed:
		v = 2
	}
	s.metrics.ComponentState.WithLabelValues("gateway").Set(v)
}

// Meta describes the gateway for component discovery.
func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        "gateway",
		Type:        "gateway",
		Description: "HTTP and websocket API for the signal processor and text generator",
		Version:     "1.0.0",
	}
}

// ConfigSchema describes the gateway's configurable parameters.
func (s *Server) ConfigSchema() component.ConfigSchema {
	minPort, maxPort := 1.0, 65535.0
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"host": {Type: "string", Description: "Listen host", Default: "0.0.0.0"},
			"port": {Type: "int", Description: "Listen port", Default: 8000,
				Minimum: &minPort, Maximum: &maxPort},
			"allowed_origins": {Type: "array", Description: "CORS origin allowlist; \"*\" allows any"},
			"ingest_rate_limit": {Type: "float",
				Description: "Signal chunks accepted per second per client"},
			"ingest_burst": {Type: "int", Description: "Ingest burst allowance per client"},
		},
		Required: []string{"port"},
	}
}

// Health reports whether the gateway is serving.
func (s *Server) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return component.HealthStatus{
		Healthy:    s.state == component.StateStarted,
		LastCheck:  time.Now(),
		ErrorCount: int(s.failures.Load()),
		Uptime:     time.Since(s.startTime),
	}
}

// DataFlow reports request throughput since Start.
func (s *Server) DataFlow() component.FlowMetrics {
	s.mu.Lock()
	start := s.startTime
	activity := s.activity
	s.mu.Unlock()

	total := s.requests.Load()
	uptime := time.Since(start).Seconds()
	flow := component.FlowMetrics{LastActivity: activity}
	if uptime > 0 {
		flow.MessagesPerSecond = float64(total) / uptime
	}
	if total > 0 {
		flow.ErrorRate = float64(s.failures.Load()) / float64(total)
	}
	return flow
}
