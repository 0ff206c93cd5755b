// Package ws streams engine events to dashboard clients over WebSocket.
// The hub subscribes to the in-process bus and fans each event out as a
// JSON text frame; clients can narrow the stream to specific event kinds.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DecentralizedMoney/matreshka/internal/bus"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before the read side
	// gives up. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps incoming subscription frames.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outgoing buffer. Full buffers drop
	// frames rather than stall the hub.
	sendBufferSize = 256

	// busBufferSize is the hub's own subscription depth on the engine bus.
	busBufferSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeMsg is the JSON frame a client sends to narrow or widen its
// event stream. Kinds match domain event kind strings; "*" means all.
type subscribeMsg struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

// client is one WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	kinds map[string]bool
	all   bool
}

// Hub fans bus events out to connected WebSocket clients.
type Hub struct {
	bus *bus.Bus
	log *slog.Logger

	mode      string
	startedAt time.Time

	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
}

// NewHub creates a hub over the engine bus. mode and startedAt feed the
// hello frame sent to each client on connect.
func NewHub(b *bus.Bus, mode string, startedAt time.Time, log *slog.Logger) *Hub {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		bus:        b,
		log:        log.With("component", "ws"),
		mode:       mode,
		startedAt:  startedAt,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run pumps bus events to clients until ctx is cancelled or the bus
// closes. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.bus.Subscribe("ws", busBufferSize)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", "total", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", "total", total)

		case ev, ok := <-sub.C():
			if !ok {
				h.closeAll()
				return nil
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("event marshal failed", "kind", string(ev.Kind), "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(string(ev.Kind)) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("dropping frame for slow client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// HandleWS upgrades the request and registers the client. New clients
// receive every event kind until they send a subscribe frame.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade failed", "err", err)
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		kinds: make(map[string]bool),
		all:   true,
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

// wants reports whether the client should receive the given event kind.
func (c *client) wants(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.all || c.kinds[kind]
}

// apply updates the client's kind filter. Subscribing to "*" restores the
// firehose; any explicit kind list replaces it.
func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range msg.Subscribe {
		if k == "*" {
			c.all = true
			continue
		}
		c.all = false
		c.kinds[k] = true
	}
	for _, k := range msg.Unsubscribe {
		if k == "*" {
			c.all = false
			c.kinds = make(map[string]bool)
			continue
		}
		delete(c.kinds, k)
	}
}

// sendHello pushes a status frame so clients can mark the connection
// healthy before any engine event flows.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	msg, err := json.Marshal(map[string]any{
		"kind": "hello",
		"payload": map[string]any{
			"mode":          c.hub.mode,
			"uptimeSeconds": uptime,
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump consumes subscription frames until the connection dies.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("unexpected close", "err", err)
			}
			return
		}
		var msg subscribeMsg
		if err := json.Unmarshal(message, &msg); err == nil &&
			(len(msg.Subscribe) > 0 || len(msg.Unsubscribe) > 0) {
			c.apply(msg)
		}
	}
}

// writePump sends queued frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
