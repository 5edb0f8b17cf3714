package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tenantly/tenantly/internal/model"
)

// Client is one WebSocket connection. Room membership is guarded by the
// hub's lock.
type Client struct {
	id        string
	principal *model.Principal
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	rooms     map[string]struct{}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// Principal returns the identity the connection authenticated as.
func (c *Client) Principal() *model.Principal { return c.principal }

// enqueue queues msg without blocking. It reports false when the queue is
// full or the client is closing.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) reply(out Outbound) {
	msg, err := json.Marshal(out)
	if err != nil {
		c.hub.logger.Warn("realtime reply encode failed", "event", out.Event, "error", err)
		return
	}
	if !c.enqueue(msg) {
		c.hub.unregister(c)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			c.reply(Outbound{Event: EventError, Error: "malformed message"})
			continue
		}
		c.hub.handle(c, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
