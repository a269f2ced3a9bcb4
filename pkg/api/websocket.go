package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperbook/pkg/app/core/feed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub tracks WebSocket clients and routes book messages to the ones
// subscribed to each channel. It implements topic.Publisher.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// channel -> subscribed clients and their backlogs
	subs map[string]map[*Client]*feed.Backlog

	mu sync.RWMutex

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	limit   int  // per-client backlog length before conflation
	replace bool // backlogs keep only the newest snapshot
	log     *zap.SugaredLogger
}

// NewHub creates a new WebSocket hub
func NewHub(log *zap.SugaredLogger, limit int, replace bool) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		subs:       make(map[string]map[*Client]*feed.Backlog),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		limit:      limit,
		replace:    replace,
		log:        log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("ws_client_connected", "client", client.id, "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.removeLocked(client)
				h.log.Infow("ws_client_disconnected", "client", client.id, "total", len(h.clients))
			}
			h.mu.Unlock()
		}
	}
}

// removeLocked drops client and all of its subscriptions. h.mu must be held.
func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client)
	for channel, subscribers := range h.subs {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.subs, channel)
		}
	}
	close(client.done)
}

// attach subscribes client to channel, seeding its backlog with the
// bootstrap snapshot. The server calls it on the matching goroutine, so no
// change can be published between the snapshot and the subscription
// becoming visible to Publish.
func (h *Hub) attach(client *Client, channel string, snapshot feed.Message) {
	b := feed.NewBacklog(h.limit, h.replace)
	_, _ = b.Push(snapshot) // a single message never collapses

	h.mu.Lock()
	select {
	case <-client.done:
		h.mu.Unlock()
		return
	default:
	}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Client]*feed.Backlog)
	}
	h.subs[channel][client] = b
	h.mu.Unlock()

	client.subsMu.Lock()
	client.subscriptions[channel] = b
	client.subsMu.Unlock()
	client.wake()
	h.log.Infow("ws_client_subscribed", "client", client.id, "channel", channel)
}

func (h *Hub) detach(client *Client, channel string) bool {
	h.mu.Lock()
	_, ok := h.subs[channel][client]
	delete(h.subs[channel], client)
	if len(h.subs[channel]) == 0 {
		delete(h.subs, channel)
	}
	h.mu.Unlock()

	client.subsMu.Lock()
	delete(client.subscriptions, channel)
	client.subsMu.Unlock()
	if ok {
		h.log.Infow("ws_client_unsubscribed", "client", client.id, "channel", channel)
	}
	return ok
}

// Publish queues msg for every client subscribed to channel. It never
// blocks on a client: a slow client's backlog is collapsed instead.
func (h *Hub) Publish(channel string, msg feed.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client, b := range h.subs[channel] {
		conflated, err := b.Push(msg)
		if err != nil {
			h.log.Errorw("ws_backlog_collapse_failed", "client", client.id, "channel", channel, "err", err)
		} else if conflated {
			h.log.Debugw("ws_backlog_conflated", "client", client.id, "channel", channel, "times", b.Conflated())
		}
		client.wake()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	// Subscribed channels, each with its own outbound backlog
	subscriptions map[string]*feed.Backlog
	subsMu        sync.RWMutex

	notify  chan struct{}
	control chan WSControlMessage
	done    chan struct{} // closed by the hub on unregister
}

func (c *Client) backlog(channel string) *feed.Backlog {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Unsubscribe removes a channel subscription
func (c *Client) Unsubscribe(channel string) bool {
	return c.hub.detach(c, channel)
}

// IsSubscribed checks if client is subscribed to a channel
func (c *Client) IsSubscribed(channel string) bool {
	return c.backlog(channel) != nil
}

func (c *Client) sendControl(m WSControlMessage) {
	select {
	case c.control <- m:
	case <-c.done:
	}
}

// readPump handles subscription requests until the connection fails
func (c *Client) readPump(ctx context.Context, subscribe func(context.Context, *Client, string) error) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnw("ws_read_error", "client", c.id, "err", err)
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.sendControl(WSControlMessage{Type: "error", Message: "invalid message: " + err.Error()})
			continue
		}

		switch req.Op {
		case "subscribe":
			for _, channel := range req.Channels {
				if c.IsSubscribed(channel) {
					continue
				}
				if err := subscribe(ctx, c, channel); err != nil {
					c.sendControl(WSControlMessage{Type: "error", Channel: channel, Message: err.Error()})
				}
			}
		case "unsubscribe":
			for _, channel := range req.Channels {
				if c.Unsubscribe(channel) {
					c.sendControl(WSControlMessage{Type: "unsubscribed", Channel: channel})
				}
			}
		default:
			c.sendControl(WSControlMessage{Type: "error", Message: "unknown op: " + req.Op})
		}
	}
}

// writePump drains the client's backlogs to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.notify:
			if err := c.flush(); err != nil {
				return
			}

		case m := <-c.control:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) flush() error {
	c.subsMu.RLock()
	channels := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		channels = append(channels, ch)
	}
	c.subsMu.RUnlock()
	sort.Strings(channels)

	for _, ch := range channels {
		b := c.backlog(ch)
		if b == nil {
			continue
		}
		for {
			msg, ok := b.Pop()
			if !ok {
				break
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteJSON(WSBookMessage{
				Type:    "book",
				Channel: ch,
				Kind:    msg.Kind.String(),
				Payload: msg,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]*feed.Backlog),
		notify:        make(chan struct{}, 1),
		control:       make(chan WSControlMessage, 16),
		done:          make(chan struct{}),
	}

	select {
	case s.hub.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump(s.ctx, s.subscribeClient)
}
