// Package notify fans queue events out to connected WebSocket clients.
// Delivery is best effort: there is no backlog, and a client only sees
// events broadcast while it is connected.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/granobox/spool/internal/logging"
	"github.com/granobox/spool/internal/metrics"
)

type EventType string

const (
	EventQueueUpdated EventType = "queue_updated"
	EventPrintSuccess EventType = "print_success"
	EventPrintError   EventType = "print_error"
)

type Event struct {
	Type   EventType `json:"type"`
	ItemID int64     `json:"itemId,omitempty"`
}

func QueueUpdated() Event { return Event{Type: EventQueueUpdated} }

func PrintSuccess(itemID int64) Event { return Event{Type: EventPrintSuccess, ItemID: itemID} }

func PrintError(itemID int64) Event { return Event{Type: EventPrintError, ItemID: itemID} }

const writeTimeout = 5 * time.Second

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logging.OrNop(logger).With(zap.String("component", "notifier")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// UI clients are served from other local origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*client),
	}
}

// ServeHTTP upgrades the request and registers the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.New(), conn: conn}
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()
	metrics.NotifierClients.Set(float64(count))

	h.logger.Info("client connected",
		zap.String("client_id", c.id.String()),
		zap.String("remote", r.RemoteAddr),
		zap.Int("clients", count))

	go h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.logger.Debug("client message",
			zap.String("client_id", c.id.String()),
			zap.ByteString("message", msg))
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = c.conn.Close()
	metrics.NotifierClients.Set(float64(count))
	h.logger.Info("client disconnected",
		zap.String("client_id", c.id.String()),
		zap.Int("clients", count))
}

// Broadcast sends evt to every open connection. Connections whose write
// fails are dropped.
func (h *Hub) Broadcast(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(payload); err != nil {
			h.logger.Debug("dropping client after failed send",
				zap.String("client_id", c.id.String()),
				zap.Error(err))
			h.remove(c)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		h.remove(c)
	}
}
