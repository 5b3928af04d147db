package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// mu guards send against the hub closing the channel while readPump
	// is still answering pings. Only close() may close the channel.
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue hands a payload to the write pump. It reports false when the
// client is closed or its buffer is full; it never blocks and never
// writes to a closed channel.
func (c *client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once. readPump may still be
// running afterwards; its sends turn into no-ops.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// clientMessage is what subscribers send us: application-level pings
// and channel subscriptions.
type clientMessage struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
}

func (c *client) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal for %s: %v", c.id, err)
		return
	}
	c.enqueue(payload)
}

// readPump consumes client messages until the connection dies. It owns
// the read side and the pong deadline.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("ws: invalid message from %s: %s", c.id, data)
			continue
		}

		switch msg.Type {
		case "ping":
			c.sendJSON(map[string]any{"type": "pong", "timestamp": msg.Timestamp})
		case "subscribe":
			log.Printf("ws: client %s subscribed to %s", c.id, msg.Channel)
			c.sendJSON(map[string]any{
				"type":    "subscription",
				"status":  "subscribed",
				"channel": msg.Channel,
			})
		}
	}
}

// writePump drains the send channel to the connection and keeps the
// protocol-level ping going. It owns the write side.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
