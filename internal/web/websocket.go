package web

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rook-computer/favicount/internal/event"
	"github.com/rook-computer/favicount/internal/logging"
	"github.com/rook-computer/favicount/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 16
)

// Message types pushed to browser tabs.
const (
	MessageFavicon = "favicon"
	MessageEvent   = "event"
)

type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type faviconMessage struct {
	URL string `json:"url"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSMessage
}

// Hub pushes favicon changes to every connected preview tab. Slow clients
// are dropped rather than waited for.
type Hub struct {
	// Current returns the favicon a new client should show first.
	Current func() string

	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func NewHub(logger *slog.Logger, m *metrics.Collector, devMode bool) *Hub {
	h := &Hub{
		logger:  logging.Component(logger, "websocket"),
		metrics: m,
		clients: make(map[*wsClient]struct{}),
	}
	if devMode {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// Attach forwards swaps and resets as favicon messages and every event as
// an event message.
func (h *Hub) Attach(bus *event.Bus) {
	bus.SubscribeAll(func(e event.Event) {
		switch e.Type {
		case event.RenderCompleted, event.FaviconReset:
			if url, ok := e.Data["url"].(string); ok {
				h.Broadcast(WSMessage{Type: MessageFavicon, Data: faviconMessage{URL: url}})
			}
		}
		h.Broadcast(WSMessage{Type: MessageEvent, Data: e})
	})
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan WSMessage, wsSendBuffer)}
	if h.Current != nil {
		if url := h.Current(); url != "" {
			c.send <- WSMessage{Type: MessageFavicon, Data: faviconMessage{URL: url}}
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.RecordWebSocketConnection(1)

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropLocked(c)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

func (h *Hub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.RecordWebSocketConnection(-1)
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		h.drop(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only handles control frames; clients never send data.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
