// Package consumerhub fans tailed events out to websocket consumers
// (charts, bots) so N processes can follow one tailer instead of each
// polling the event log file. Clients may filter by ticker.
package consumerhub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dydx-ladder/internal/model"
)

const (
	clientSendBuffer = 256
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Consumers are local processes; the hub is not an internet-facing
	// service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages websocket clients and broadcasts events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// latest book top per ticker, replayed to newly connected clients.
	latest map[string]json.RawMessage

	// OnDrop fires when a slow client's buffer overflows (optional).
	OnDrop func()
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]json.RawMessage),
	}
}

// Client is a single websocket peer with its own outbound buffer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.RWMutex
	tickers map[string]bool // empty = all tickers
}

func (c *Client) wants(ticker string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tickers) == 0 {
		return true
	}
	return c.tickers[ticker]
}

// Run drains eventCh, broadcasting every event. Blocks until ctx is
// cancelled or eventCh is closed.
func (h *Hub) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-eventCh:
			if !ok {
				h.closeAll()
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Broadcast sends one event to every subscribed client. Slow clients
// drop messages rather than stalling the fan-out.
func (h *Hub) Broadcast(ev model.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ticker := ev.Ticker()

	h.mu.Lock()
	if ev.Kind == model.KindBookTop {
		h.latest[ticker] = raw
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(ticker) {
			continue
		}
		select {
		case client.send <- raw:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket client connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[consumerhub] upgrade: %v", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, clientSendBuffer),
		hub:     h,
		tickers: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	// Replay the latest book top per ticker so the client renders
	// immediately instead of waiting for the next tick.
	h.mu.RLock()
	for _, raw := range h.latest {
		select {
		case client.send <- raw:
		default:
		}
	}
	h.mu.RUnlock()

	go client.writePump()
	go client.readPump()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// subscribeMessage is the only inbound message clients send:
// {"type":"subscribe","tickers":["ETH-USD"]}. Empty tickers = all.
type subscribeMessage struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "subscribe" {
			continue
		}
		c.mu.Lock()
		c.tickers = make(map[string]bool, len(msg.Tickers))
		for _, t := range msg.Tickers {
			c.tickers[t] = true
		}
		c.mu.Unlock()
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
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
