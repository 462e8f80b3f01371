package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds what clients may send; they only send control frames
	maxMessageSize = 4 * 1024
)

// Client represents a single websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// done closes when writePump has finished with conn
	done chan struct{}
}

// NewClient creates a new client and registers it with the hub. It
// returns nil when the hub has stopped.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
		done: make(chan struct{}),
	}
	select {
	case hub.register <- client:
		return client
	case <-hub.done:
		return nil
	}
}

// Run starts the client's read and write pumps.
// It blocks until both pumps are done with the connection, which is
// recycled once the handler returns.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
	<-c.done
}

// readPump detects disconnection and keeps pongs flowing.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump is the only goroutine that writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
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
