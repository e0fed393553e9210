package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawmart/chat-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
	sendBuffer     = 256
)

// wsConn wraps one gorilla connection. All writes go through the send
// channel and the write loop, so fan-out from the hub never blocks on
// a slow socket; a full buffer fails Enqueue and gets the connection
// dropped by the hub instead.
type wsConn struct {
	conn  *websocket.Conn
	ident domain.Identity

	send      chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, ident domain.Identity) *wsConn {
	return &wsConn{
		conn:   conn,
		ident:  ident,
		send:   make(chan Event, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) UserID() string { return c.ident.UserID }

func (c *wsConn) Role() domain.Role { return c.ident.Role }

func (c *wsConn) Enqueue(ev Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
