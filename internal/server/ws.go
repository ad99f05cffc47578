package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/callback"
	"github.com/ayusman/mudra/internal/engine"
)

const writeTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// SignSource publishes recognized signs.
type SignSource interface {
	OnSign(fn func(engine.Sign)) callback.Handle
	RemoveCallback(h callback.Handle) bool
}

type signEvent struct {
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	TimestampMs int64   `json:"timestamp"`
}

// sendQueue bounds the events buffered for one client. A client that falls
// this far behind is disconnected.
const sendQueue = 16

// client is one WebSocket connection. Only writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// drop closes the connection, which ends both pumps.
func (c *client) drop() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

func (c *client) writePump() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			break
		}
	}
	// Keep draining so broadcast never sees a full queue for a dead client.
	for range c.send {
	}
}

// EventsHandler pushes every recognized sign to its WebSocket clients.
type EventsHandler struct {
	source  SignSource
	handle  callback.Handle
	clients map[*client]struct{}
	mu      sync.Mutex
}

// NewEventsHandler subscribes to source. Call Close to unsubscribe and
// drop the connected clients.
func NewEventsHandler(source SignSource) *EventsHandler {
	h := &EventsHandler{
		source:  source,
		clients: make(map[*client]struct{}),
	}
	h.handle = source.OnSign(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugf(r.Context(), "websocket upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendQueue)}
	go c.writePump()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.drop()
	}()

	// Reads only detect the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the sign source and disconnects every client.
func (h *EventsHandler) Close() {
	h.source.RemoveCallback(h.handle)

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.drop()
		delete(h.clients, c)
	}
}

// broadcast queues s for every client without waiting on the network, so
// a stalled client never delays the caller or the other clients.
func (h *EventsHandler) broadcast(s engine.Sign) {
	msg, err := json.Marshal(signEvent{
		Type:        "sign",
		Label:       s.Label,
		Probability: s.Probability,
		TimestampMs: s.TimestampMs,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logger.Default().Debugf("websocket: client %s too slow, disconnecting", c.conn.RemoteAddr())
			c.drop()
			delete(h.clients, c)
		}
	}
}
