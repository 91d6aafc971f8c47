// Package natsclient manages the NATS connection used to publish
// classification frames and distribute them to websocket fan-out. It
// wraps nats.go with a circuit breaker so a flapping broker cannot
// stall the signal pipeline.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/llamasearchai/llamaneuro/errors"
)

// ConnectionStatus represents the state of the NATS connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Publish and Subscribe when the
	// client has no live connection.
	ErrNotConnected = stderrors.New("not connected to NATS")
	// ErrCircuitOpen is returned by Connect while the breaker holds
	// the connection open after repeated failures.
	ErrCircuitOpen = stderrors.New("circuit breaker is open")
)

// Status holds a point-in-time view of the connection.
type Status struct {
	Status          ConnectionStatus `json:"status"`
	FailureCount    int32            `json:"failure_count"`
	LastFailureTime time.Time        `json:"last_failure_time"`
	Reconnects      int32            `json:"reconnects"`
	RTT             time.Duration    `json:"rtt"`
}

// Client manages a NATS connection with reconnect handling and a
// circuit breaker on repeated connect failures.
type Client struct {
	url    string
	logger *slog.Logger

	conn *nats.Conn
	subs []*nats.Subscription

	status     atomic.Value // ConnectionStatus
	failures   atomic.Int32
	reconnects atomic.Int32

	// Circuit breaker
	lastFailure      atomic.Value // time.Time
	backoff          atomic.Value // time.Duration
	circuitFailures  atomic.Int32
	circuitThreshold int32
	maxBackoff       time.Duration

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string
	username      string
	password      string
	token         string

	onReconnect  func()
	onDisconnect func(error)

	// Metric hooks; nil when metrics are disabled.
	connectedGauge   gaugeSetter
	reconnectCounter counterIncrementer

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

type gaugeSetter interface{ Set(float64) }
type counterIncrementer interface{ Inc() }

// NewClient creates a NATS client for url. The client does not connect
// until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     10 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	return c, nil
}

// URL returns the configured server URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	v := c.status.Load()
	if v == nil {
		return StatusDisconnected
	}
	return v.(ConnectionStatus)
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(s)
	if c.connectedGauge != nil {
		if s == StatusConnected {
			c.connectedGauge.Set(1)
		} else {
			c.connectedGauge.Set(0)
		}
	}
}

// IsHealthy reports whether the connection is live.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the total connect failure count.
func (c *Client) Failures() int32 { return c.failures.Load() }

// Backoff returns the current circuit breaker backoff.
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

// GetStatus returns a snapshot of the connection state.
func (c *Client) GetStatus() *Status {
	st := &Status{
		Status:          c.Status(),
		FailureCount:    c.failures.Load(),
		LastFailureTime: c.lastFailure.Load().(time.Time),
		Reconnects:      c.reconnects.Load(),
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil && conn.IsConnected() {
		if rtt, err := conn.RTT(); err == nil {
			st.RTT = rtt
		}
	}
	return st
}

func (c *Client) recordFailure() {
	c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	if c.circuitFailures.Add(1) < c.circuitThreshold {
		return
	}

	// Threshold hit: open the circuit and schedule a half-open probe
	// after the current backoff.
	cur := c.Status()
	if cur != StatusCircuitOpen && c.status.CompareAndSwap(cur, StatusCircuitOpen) {
		if c.connectedGauge != nil {
			c.connectedGauge.Set(0)
		}
		backoff := c.backoff.Load().(time.Duration)
		c.logger.Warn("circuit breaker opened",
			"failures", c.failures.Load(), "backoff", backoff)

		next := backoff * 2
		if next > c.maxBackoff {
			next = c.maxBackoff
		}
		c.backoff.Store(next)
		c.circuitFailures.Store(0)

		time.AfterFunc(backoff, func() {
			if c.Status() == StatusCircuitOpen {
				c.setStatus(StatusDisconnected)
			}
		})
	} else {
		next := c.backoff.Load().(time.Duration) * 2
		if next > c.maxBackoff {
			next = c.maxBackoff
		}
		c.backoff.Store(next)
		c.circuitFailures.Store(0)
	}
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})
}

// Connect establishes the connection. It fails fast while the circuit
// breaker is open.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("connecting to NATS", "url", c.url)

	opts := c.buildConnectionOptions()

	done := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			done <- err
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			c.recordFailure()
			if c.Status() == StatusCircuitOpen {
				return ErrCircuitOpen
			}
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		c.recordFailure()
		if c.Status() != StatusCircuitOpen {
			c.setStatus(StatusDisconnected)
		}
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("connected to NATS", "url", c.url)
	return nil
}

// WaitForConnection blocks until the connection is healthy or ctx ends.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait")
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

// Publish sends data to subject. Returns ErrNotConnected when the
// connection is down; callers publishing telemetry treat that as a
// soft failure.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Subscribe registers handler for subject. Each delivery gets a
// context derived from ctx with a per-message timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "subscribe "+subject)
	}

	c.subs = append(c.subs, sub)
	return nil
}

// RTT returns the round-trip time to the server.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	c.subs = nil

	if c.conn != nil {
		drainTimeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drained := make(chan error, 1)
		go func() { drained <- c.conn.Drain() }()
		select {
		case err := <-drained:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
				c.conn.Close()
			}
		case <-time.After(drainTimeout):
			c.logger.Warn("drain timed out, forcing close")
			c.conn.Close()
		}
		c.conn = nil
	}

	c.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.reconnects.Add(1)
	c.setStatus(StatusConnected)
	if c.reconnectCounter != nil {
		c.reconnectCounter.Inc()
	}
	c.logger.Info("NATS reconnected", "reconnects", c.reconnects.Load())
	if c.onReconnect != nil {
		c.onReconnect()
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if !c.closed.Load() {
		c.setStatus(StatusDisconnected)
		c.logger.Warn("NATS connection closed")
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS async error", "error", err)
}
