// Package trainer serves the training UI channel: browsers connect over a
// websocket, send command strings such as "Cls:Hand Open" or "Cmd:Add", and
// receive JSON status updates.
package trainer

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/limbcontrol/internal/monitoring"
)

var logs = monitoring.NewStreams("trainer")

// SetLogWriters configures the trainer package log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Envelope wraps every message pushed to clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks connected trainer clients.
type Hub struct {
	upgrader  websocket.Upgrader
	onCommand func(string)
	metrics   *monitoring.Metrics

	mu      sync.Mutex
	clients map[string]*client
	closed  bool

	dropped atomic.Uint64
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub that passes each received text frame to onCommand.
// onCommand is called from connection goroutines and must not block.
func NewHub(onCommand func(string), metrics *monitoring.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The trainer page is served from other origins (file://, dev servers).
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		onCommand: onCommand,
		metrics:   metrics,
		clients:   make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Diagf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	logs.Opsf("trainer client %s connected from %s (%d connected)", c.id[:8], r.RemoteAddr, n)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logs.Diagf("trainer client %s: %v", c.id[:8], err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		msg := strings.TrimSpace(string(data))
		if msg == "" || h.onCommand == nil {
			continue
		}
		h.onCommand(msg)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logs.Opsf("trainer client %s disconnected (%d connected)", c.id[:8], n)
}

// Broadcast sends v, wrapped in an Envelope of the given type, to every
// client. A client whose queue is full misses the message.
func (h *Hub) Broadcast(kind string, v any) error {
	data, err := json.Marshal(Envelope{Type: kind, Data: v})
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.dropped.Add(uint64(dropped))
		h.metrics.PacketsDropped("trainer_ws", dropped)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped is the number of per-client messages discarded.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}
