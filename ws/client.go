package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rlaneuville/roomchat/chat"
	"github.com/rlaneuville/roomchat/globals"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Client is the middleman between one websocket connection and the chat
// service. Its session id is the membership key for the lifetime of the
// connection.
type Client struct {
	conn      *websocket.Conn
	sessionId string

	// Send is the buffered channel of outbound payloads, drained by the
	// write loop only.
	Send chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:      conn,
		sessionId: uuid.NewString(),
		Send:      make(chan []byte, sendChannelSize),
		done:      make(chan struct{}),
	}
}

func (c *Client) SessionId() string {
	return c.sessionId
}

func (c *Client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Push queues a payload for delivery. It never blocks: a full buffer or a
// closed connection is reported as an error so the router can skip just this
// recipient.
func (c *Client) Push(data []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection %s is closed", c.sessionId)
	default:
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", c.sessionId)
	}
}

// ReadLoop pumps decoded requests from the websocket connection into the
// service, one at a time. There is at most one reader per connection.
func (c *Client) ReadLoop(svc *chat.Service) {
	defer func() {
		c.conn.Close()
		c.close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("websocket closed unexpectedly", "session_id", c.sessionId, "error", err)
			}
			return
		}
		svc.HandleRaw(c, raw)
	}
}

// WriteLoop pumps queued payloads to the websocket connection and keeps the
// connection alive with pings. There is at most one writer per connection.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				globals.AppLogger.Debug("could not write to websocket", "session_id", c.sessionId, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
