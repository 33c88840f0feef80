// Package ws streams position updates from the event bus to WebSocket
// clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// envelope is the frame written to clients.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// filterMsg is sent by a client to narrow the feed. Empty lists mean
// everything.
//
//	{"action":"filter","symbols":["AAPL"],"owners":["12345"]}
type filterMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	Owners  []string `json:"owners"`
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	symbols map[string]bool
	owners  map[string]bool
}

// Config captures runtime metadata reported to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub fans position updates out to connected clients.
type Hub struct {
	bus        domain.EventBus
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	updates    chan domain.PositionUpdate
	done       chan struct{}
	mu         sync.RWMutex
	mode       string
	startedAt  time.Time
	logger     *slog.Logger
}

// NewHub creates a hub fed by the positions channel of bus.
func NewHub(bus domain.EventBus, cfg Config, logger *slog.Logger) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		bus:        bus,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		updates:    make(chan domain.PositionUpdate, 256),
		done:       make(chan struct{}),
		mode:       mode,
		startedAt:  startedAt,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run subscribes to the bus and serves clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	msgs, err := h.bus.Subscribe(ctx, domain.ChannelPositions)
	if err != nil {
		return err
	}
	go h.pump(ctx, msgs)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case u := <-h.updates:
			h.broadcast(u)
		}
	}
}

// pump decodes bus payloads into updates. Malformed payloads are dropped.
func (h *Hub) pump(ctx context.Context, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("positions subscription closed")
				return
			}
			var u domain.PositionUpdate
			if err := json.Unmarshal(data, &u); err != nil {
				h.logger.Warn("dropping malformed update", slog.String("error", err.Error()))
				continue
			}
			select {
			case h.updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) broadcast(u domain.PositionUpdate) {
	payload, err := json.Marshal(u)
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope{Type: "position_update", Payload: payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(u) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping update for slow client",
				slog.String("position_id", u.Event.PositionID),
			)
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		symbols: map[string]bool{},
		owners:  map[string]bool{},
	}
	if owner := strings.TrimSpace(r.URL.Query().Get("owner")); owner != "" {
		c.owners[owner] = true
	}

	c.sendHello()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) wants(u domain.PositionUpdate) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) > 0 && !c.symbols[strings.ToUpper(u.Symbol)] {
		return false
	}
	if len(c.owners) > 0 && !c.owners[u.OwnerChat] {
		return false
	}
	return true
}

func (c *client) applyFilter(msg filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = make(map[string]bool, len(msg.Symbols))
	for _, s := range msg.Symbols {
		c.symbols[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	c.owners = make(map[string]bool, len(msg.Owners))
	for _, o := range msg.Owners {
		c.owners[strings.TrimSpace(o)] = true
	}
}

func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	payload, _ := json.Marshal(map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": max(uptime, 0),
	})
	msg, err := json.Marshal(envelope{Type: "hello", Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var f filterMsg
		if json.Unmarshal(message, &f) == nil && f.Action == "filter" {
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
