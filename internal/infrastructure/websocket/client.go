package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"duochat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 8 * 1024
	sendBufferSize = 256
)

// Client wraps one websocket connection. ID is the connection descriptor used
// by the session registry; UserID stays empty until the connection
// authenticates.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// Send enqueues a payload without blocking the caller. A client whose buffer
// is full is dropped: slow consumers must not stall fan-out to the rest.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	case c.send <- payload:
		return true
	default:
		logger.Warn("websocket: send buffer full, dropping client %s (user %s)", c.ID, c.UserID)
		c.Close()
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
	})
}

// ReadPump reads frames and hands them to onFrame until the connection drops,
// then runs onClose exactly once. Runs on the connection's reader goroutine.
func (c *Client) ReadPump(onFrame func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket: read error on %s: %v", c.ID, err)
			}
			return
		}
		onFrame(c, payload)
	}
}

// WritePump drains the send buffer onto the wire and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("websocket: write error on %s: %v", c.ID, err)
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
