package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/llamasearchai/llamaneuro/metric"
	"github.com/llamasearchai/llamaneuro/neuro"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// sendBuffer is per-client. A client that falls this many
	// snapshots behind is dropped rather than backpressuring the hub.
	sendBuffer = 16
)

// hub fans classification snapshots out to websocket clients.
type hub struct {
	logger   *slog.Logger
	metrics  *metric.Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger *slog.Logger, metrics *metric.Metrics, checkOrigin func(*http.Request) bool) *hub {
	return &hub{
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// handleWebsocket upgrades the connection and streams snapshots until
// the client disconnects or falls too far behind.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.register(client) {
		conn.Close()
		return
	}

	// Greet with the current snapshot so clients render immediately.
	if snap := s.processor.Snapshot(); snap != nil {
		if data, err := json.Marshal(snap); err == nil {
			s.hub.greet(client, data)
		}
	}

	go s.hub.writePump(client)
	go s.hub.readPump(client)
}

func (h *hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(float64(len(h.clients)))
	}
	return true
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(float64(len(h.clients)))
	}
}

// greet queues data for c if it is still registered. Checking
// membership under the lock keeps the send ordered before any
// concurrent closeAll, which closes the channel only after removal.
func (h *hub) greet(c *wsClient, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcastSnapshot sends snap to every connected client. Slow clients
// are disconnected instead of blocking the broadcast.
func (h *hub) broadcastSnapshot(snap *neuro.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Debug("snapshot marshal failed", "error", err)
		return
	}
	h.broadcastRaw(data)
}

// broadcastRaw fans an already-encoded frame out to every connected
// client, dropping any whose send queue is full.
func (h *hub) broadcastRaw(data []byte) {
	h.mu.Lock()
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Debug("dropping slow websocket client", "addr", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

// reopen accepts registrations again after closeAll.
func (h *hub) reopen() {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()
}

// closeAll disconnects every client and refuses new registrations.
func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(0)
	}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// writePump pushes queued messages and pings. Exits when the send
// channel closes or a write fails.
func (h *hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; its job is pong handling and
// noticing disconnects.
func (h *hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
