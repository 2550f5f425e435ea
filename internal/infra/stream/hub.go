package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"amm_go/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512

	channelBufferSize = 256
)

// Message is one frame pushed to subscribers.
type Message struct {
	Kind      string          `json:"kind"`
	Pool      string          `json:"pool_id"`
	Event     json.RawMessage `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
}

// Request is a client frame. Pool is a hex pool id; an empty pool on
// unsubscribe clears every filter.
type Request struct {
	Op   string `json:"op"` // subscribe | unsubscribe
	Pool string `json:"pool"`
}

// ConnCounter tracks open connections. infra.Metrics satisfies it.
type ConnCounter interface {
	IncrementConnections()
	DecrementConnections()
}

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	mu    sync.RWMutex
	pools map[string]struct{} // empty = every pool
}

// Hub fans engine notifications out to websocket clients. It is an
// EventSink that never fails: slow clients and a full queue drop frames.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	mu       sync.RWMutex
	log      *slog.Logger
	counter  ConnCounter
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. counter may be nil.
func NewHub(log *slog.Logger, counter ConnCounter) *Hub {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Message, channelBufferSize),
		register:   make(chan *Client, channelBufferSize),
		unregister: make(chan *Client, channelBufferSize),
		log:        log,
		counter:    counter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run owns the client set until Stop is called.
func (h *Hub) Run() {
	h.log.Info("[STREAM] Hub starting")
	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Info("[STREAM] Hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			if h.counter != nil {
				h.counter.IncrementConnections()
			}
			h.log.Debug("[STREAM] Client registered", slog.String("client", c.id), slog.Int("total", total))

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			if ok && h.counter != nil {
				h.counter.DecrementConnections()
			}
			h.log.Debug("[STREAM] Client unregistered", slog.String("client", c.id), slog.Int("total", total))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop shuts the hub down and closes every client queue.
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit implements domain.EventSink.
func (h *Hub) Emit(_ context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		h.log.Error("[STREAM] Marshal failed", slog.String("kind", n.Kind()), slog.Any("error", err))
		return nil
	}
	msg := &Message{
		Kind:      n.Kind(),
		Pool:      n.PoolID().Hex(),
		Event:     data,
		Timestamp: time.Now(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("[STREAM] Broadcast queue full, dropping", slog.String("kind", n.Kind()))
	}
	return nil
}

func (h *Hub) deliver(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(msg.Pool) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("[STREAM] Client buffer full, skipping", slog.String("client", c.id))
		}
	}
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("[STREAM] Upgrade failed", slog.Any("error", err))
		return
	}
	c := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, channelBufferSize),
		id:    uuid.NewString(),
		pools: make(map[string]struct{}),
	}
	if pool := r.URL.Query().Get("pool"); pool != "" {
		c.pools[pool] = struct{}{}
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *Client) wants(pool string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.pools) == 0 {
		return true
	}
	_, ok := c.pools[pool]
	return ok
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("[STREAM] Read error", slog.String("client", c.id), slog.Any("error", err))
			}
			return
		}
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch req.Op {
	case "subscribe":
		if req.Pool != "" {
			c.pools[req.Pool] = struct{}{}
		}
	case "unsubscribe":
		if req.Pool == "" {
			clear(c.pools)
		} else {
			delete(c.pools, req.Pool)
		}
	}
}

func (c *Client) writePump() {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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
