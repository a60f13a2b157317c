package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/jitserve/internal/logging"
	"github.com/conneroisu/jitserve/internal/metrics"
	"github.com/conneroisu/jitserve/internal/watcher"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued per client before it is dropped as too slow.
	sendBuffer = 16
)

// UpdateMessage is sent to live-reload clients after a batch of changes.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Changes   []string  `json:"changes"`
	Duration  int64     `json:"duration_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// HubConfig configures the live-reload hub.
type HubConfig struct {
	// OriginPatterns are extra host patterns allowed to connect. Same-origin
	// connections are always accepted.
	OriginPatterns []string
	Logger         logging.Logger
	Metrics        *metrics.Metrics
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts change notifications to connected runtime clients.
type Hub struct {
	clients map[*client]struct{}
	mutex   sync.RWMutex
	closed  bool

	originPatterns []string
	logger         logging.Logger
	metrics        *metrics.Metrics
}

// NewHub creates a hub with no clients.
func NewHub(config HubConfig) *Hub {
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients:        make(map[*client]struct{}),
		originPatterns: config.OriginPatterns,
		logger:         logger.WithComponent("websocket"),
		metrics:        config.Metrics,
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mutex.RLock()
	closed := h.closed
	h.mutex.RUnlock()
	if closed {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, c)
	h.readPump(ctx, c)
}

// Notify broadcasts a change set. It satisfies watcher.ChangeSink.
func (h *Hub) Notify(changes watcher.ChangeSet) {
	h.metrics.ObserveChanges(len(changes.Changes))

	message, err := json.Marshal(UpdateMessage{
		Type:      "update",
		Changes:   changes.Changes,
		Duration:  changes.Duration.Milliseconds(),
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to marshal update message")
		return
	}
	h.Broadcast(message)
}

// Broadcast queues message for every client. Clients whose queue is full are
// disconnected.
func (h *Hub) Broadcast(message []byte) {
	h.mutex.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			slow = append(slow, c)
		}
	}
	h.mutex.RUnlock()

	for _, c := range slow {
		h.logger.Debug(context.Background(), "Dropping slow live-reload client")
		h.unregister(c)
		c.conn.Close(websocket.StatusPolicyViolation, "client too slow")
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mutex.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mutex.Unlock()

	for c := range clients {
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.metrics.SetLiveClients(0)
}

func (h *Hub) register(c *client) bool {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()

	h.metrics.SetLiveClients(count)
	h.logger.Debug(context.Background(), "Client connected", "clients", count)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mutex.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mutex.Unlock()

	h.metrics.SetLiveClients(count)
	h.logger.Debug(context.Background(), "Client disconnected", "clients", count)
}

// readPump discards client messages until the connection fails.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

// writePump writes queued messages and keeps the connection alive.
func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket write failed", "error", err.Error())
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
