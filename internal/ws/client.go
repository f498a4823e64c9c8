package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/menuroom/internal/protocol"
	"github.com/manpreetbhatti/menuroom/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	rateLimitWarnEvery = 100
	rateLimitMaxStrike = 1000
)

// Handler receives the decoded messages of every connection.
type Handler interface {
	HandleMessage(ctx context.Context, connID string, env protocol.Envelope)
	HandleDisconnect(ctx context.Context, connID string)
}

type Client struct {
	hub         *Hub
	handler     Handler
	conn        *websocket.Conn
	send        chan []byte
	id          string
	rateLimiter *ratelimit.Limiter
}

func ServeWs(hub *Hub, handler Handler, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return hub.checkOrigin(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("Upgrade error", "error", err)
		return
	}

	id := uuid.NewString()
	client := &Client{
		hub:         hub,
		handler:     handler,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          id,
		rateLimiter: hub.limiters.Get(id),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	ctx := context.Background()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.hub.limiters.Remove(c.id)
		c.handler.HandleDisconnect(ctx, c.id)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("WebSocket error", "conn", c.id, "error", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			violations := c.rateLimiter.Violations()
			if violations%rateLimitWarnEvery == 1 {
				c.hub.log.Warn("Rate limit exceeded", "conn", c.id, "violations", violations)
			}
			if violations > rateLimitMaxStrike {
				c.hub.log.Warn("Disconnecting client for excessive rate limit violations", "conn", c.id)
				return
			}
			continue
		}

		env, err := protocol.Parse(message)
		if err != nil {
			c.hub.log.Debug("Invalid message", "conn", c.id, "error", err)
			c.hub.SendTo(c.id, protocol.KindError, protocol.Error{Message: err.Error()})
			continue
		}

		c.handler.HandleMessage(ctx, c.id, env)
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
