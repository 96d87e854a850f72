package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"droppy/internal/infrastructure"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

// AccessEvent is pushed to the host UI whenever the access boolean flips.
// The hub replays the current state to each client on connect, so the UI
// never has to poll after subscribing.
type AccessEvent struct {
	Type      string    `json:"type"`
	HasAccess bool      `json:"has_access"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans access-change events out to the connected UI clients
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *AccessEvent
}

type client struct {
	conn *websocket.Conn
	send chan AccessEvent
}

// NewHub creates the access-event hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		logger:  logger.With(slog.String("component", "websocket_hub")),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon binds to loopback only; the UI is the sole caller
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// BroadcastAccessChange pushes the flipped access state to every client
func (h *Hub) BroadcastAccessChange(hasAccess bool) {
	event := AccessEvent{
		Type:      "access_change",
		HasAccess: hasAccess,
		Timestamp: time.Now().UTC(),
	}

	h.mu.Lock()
	h.last = &event
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			// Slow consumer; drop it rather than block the engine
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and subscribes it to access events
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{conn: conn, send: make(chan AccessEvent, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- *h.last
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.DebugContext(r.Context(), "websocket client connected",
		slog.Int("clients", count),
	)

	go h.writePump(c)
	go h.readPump(r.Context(), c)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// writePump serializes all writes for one client
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump drains the connection to process control frames and detect
// disconnects. Inbound payloads are ignored; the stream is one-way.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.DebugContext(ctx, "websocket client read error",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}
