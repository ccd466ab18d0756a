package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/metrics"
	"github.com/ManuGH/audiostream/internal/stream"
)

const (
	subscriberBuffer = 64
	writeDeadline    = 10 * time.Second
	pingPeriod       = 30 * time.Second
	pongWait         = pingPeriod + writeDeadline
)

// Hub fans stream events out to websocket subscribers. A subscriber that
// falls behind loses events rather than slowing the stream.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type subscriber struct {
	conn    *websocket.Conn
	send    chan []byte
	dropped int
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The feed is read-only; any origin may watch it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  log.WithComponent("api.events"),
		clients: make(map[*subscriber]struct{}),
	}
}

// Observe queues ev for every subscriber. It never blocks and is safe to
// register as a stream.Observer.
func (h *Hub) Observe(ev stream.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode stream event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			c.dropped++
		}
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the peer leaves
// or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := log.WithContext(r.Context(), h.logger)
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &subscriber{conn: conn, send: make(chan []byte, subscriberBuffer)}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeDeadline))
		_ = conn.Close()
		return
	}
	h.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("event subscriber connected")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(c)
	}()
	h.readLoop(c)
	h.remove(c)
}

// Close disconnects every subscriber and waits for their writers.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.SetEventSubscribers(0)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) add(c *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.SetEventSubscribers(len(h.clients))
	return true
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.SetEventSubscribers(len(h.clients))
	if c.dropped > 0 {
		h.logger.Warn().Int("dropped", c.dropped).Msg("event subscriber fell behind")
	}
}

// readLoop discards client messages and returns once the connection fails.
// It keeps the pong handler running.
func (h *Hub) readLoop(c *subscriber) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("event subscriber read failed")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}
