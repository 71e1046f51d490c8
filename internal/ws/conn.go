package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned when sending on a connection that has gone away.
var ErrClosed = errors.New("connection closed")

// Conn is one live WebSocket connection. It implements notify.Channel.
type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	// gorilla/websocket supports a single concurrent writer.
	writeMu   sync.Mutex
	connected atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	c := &Conn{
		id:           uuid.NewString(),
		ws:           ws,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	c.connected.Store(true)
	return c
}

// ID identifies the connection in logs.
func (c *Conn) ID() string { return c.id }

// Connected reports whether the connection can still accept messages.
func (c *Conn) Connected() bool { return c.connected.Load() }

// Send writes payload as a single text frame. A failed write closes the
// connection.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if !c.Connected() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)

	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Close marks the connection as gone and releases the socket. Safe to call
// more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		_ = c.ws.Close()
	})
}

// keepAlive pings the peer every interval until the connection closes.
func (c *Conn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readLoop consumes inbound frames until the peer goes away. Clients have
// nothing to say on this channel; reading only drives pong and close
// handling.
func (c *Conn) readLoop(maxMessageSize int64, idle time.Duration) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(idle))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))
	}
}
