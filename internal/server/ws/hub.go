// Package ws streams execution outcomes to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS and auth middleware in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscriber delivers payloads published on a channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Snapshot returns the positions sent to a client when it connects.
type Snapshot func() []domain.Position

// Hub fans outcome payloads from one bus channel out to every connected
// client. Clients may narrow the stream to a set of mints.
type Hub struct {
	bus      Subscriber
	channel  string
	snapshot Snapshot
	logger   *slog.Logger

	clients    map[*client]bool
	broadcast  chan envelope
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

type envelope struct {
	mint string
	data []byte
}

// NewHub creates a Hub that relays messages from channel. bus and snapshot
// may be nil.
func NewHub(bus Subscriber, channel string, snapshot Snapshot, logger *slog.Logger) *Hub {
	if snapshot == nil {
		snapshot = func() []domain.Position { return nil }
	}
	return &Hub{
		bus:        bus,
		channel:    channel,
		snapshot:   snapshot,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run subscribes to the bus and serves registrations until ctx is cancelled.
// Without a bus only messages passed to Broadcast are relayed.
func (h *Hub) Run(ctx context.Context) error {
	var msgs <-chan []byte
	if h.bus != nil {
		var err error
		if msgs, err = h.bus.Subscribe(ctx, h.channel); err != nil {
			return fmt.Errorf("ws: subscribe %s: %w", h.channel, err)
		}
		h.logger.InfoContext(ctx, "subscribed", slog.String("channel", h.channel))
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case data, ok := <-msgs:
			if !ok {
				h.logger.WarnContext(ctx, "bus subscription closed", slog.String("channel", h.channel))
				msgs = nil
				continue
			}
			if env, ok := newEnvelope(data); ok {
				h.dispatch(ctx, env)
			}

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.InfoContext(ctx, "client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.InfoContext(ctx, "client disconnected", slog.Int("total_clients", n))

		case env := <-h.broadcast:
			h.dispatch(ctx, env)
		}
	}
}

// Broadcast queues an outcome for every interested client. It drops the
// message when the hub is saturated.
func (h *Hub) Broadcast(o domain.Outcome) {
	data, err := json.Marshal(message{Type: "outcome", Payload: o})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- envelope{mint: o.Mint, data: data}:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dispatch(ctx context.Context, env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(env.mint) {
			continue
		}
		select {
		case c.send <- env.data:
		default:
			h.logger.WarnContext(ctx, "dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and registers the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- c
	c.sendSnapshot()

	go c.writePump()
	go c.readPump()
}

// message is the frame sent to clients.
type message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// newEnvelope frames a raw outcome payload from the bus. Payloads that are
// not JSON objects are dropped.
func newEnvelope(data []byte) (envelope, bool) {
	var o struct {
		Mint string `json:"mint"`
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return envelope{}, false
	}
	framed, err := json.Marshal(message{Type: "outcome", Payload: json.RawMessage(data)})
	if err != nil {
		return envelope{}, false
	}
	return envelope{mint: o.Mint, data: framed}, true
}

// filterMsg narrows a client's stream. An empty Mints list restores the
// full stream.
type filterMsg struct {
	Action string   `json:"action"`
	Mints  []string `json:"mints"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	mints map[string]bool
}

func (c *client) wants(mint string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mints) == 0 || c.mints[mint]
}

func (c *client) applyFilter(f filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch f.Action {
	case "subscribe":
		if c.mints == nil {
			c.mints = make(map[string]bool)
		}
		for _, m := range f.Mints {
			c.mints[m] = true
		}
	case "unsubscribe":
		for _, m := range f.Mints {
			delete(c.mints, m)
		}
	case "reset":
		c.mints = nil
	}
}

func (c *client) sendSnapshot() {
	positions := c.hub.snapshot()
	if positions == nil {
		positions = []domain.Position{}
	}
	data, err := json.Marshal(message{Type: "positions", Payload: positions})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

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
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var f filterMsg
		if json.Unmarshal(raw, &f) == nil && f.Action != "" {
			c.applyFilter(f)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
