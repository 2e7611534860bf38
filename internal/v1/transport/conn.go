package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/playroom/server/internal/v1/logging"
	"github.com/playroom/server/internal/v1/protocol"
)

// wsConn is the subset of *websocket.Conn the transport uses, extracted so
// tests can substitute a mock connection.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

const (
	writeWait         = 10 * time.Second
	outboundQueueSize = 256
)

// outbound is one item of a connection's write queue: either a text frame
// or the close signal.
type outbound struct {
	frame []byte
	close bool
}

// Conn owns the outbound side of one WebSocket connection. All writes go
// through a buffered queue drained by a single writePump goroutine, so
// producers never block on the socket and writes are serialized. Identity
// is the uuid minted at creation; handles compare equal iff their IDs do.
type Conn struct {
	id   string
	conn wsConn
	send chan outbound

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewConn wraps an accepted WebSocket connection. The caller must start
// the write pump with `go conn.WritePump()`.
func NewConn(ws wsConn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan outbound, outboundQueueSize),
	}
}

// ID returns the opaque identity of this handle.
func (c *Conn) ID() string {
	return c.id
}

// WritePump drains the outbound queue onto the socket. It exits on the
// close signal or the first write failure, closing the underlying
// connection either way.
func (c *Conn) WritePump() {
	defer func() { _ = c.conn.Close() }()

	for msg := range c.send {
		if msg.close {
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg.frame); err != nil {
			logging.GetLogger().Debug("websocket write failed",
				zap.String("connId", c.id), zap.Error(err))
			c.markClosed()
			return
		}
	}
}

// SendRaw enqueues a pre-serialized text frame. A non-nil error means the
// connection is dead; the caller must stop using the handle.
func (c *Conn) SendRaw(frame []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("connection %s is closed", c.id)
	}
	c.mu.RUnlock()

	// The queue can be closed between the flag check and the send; recover
	// keeps that race from killing the sender.
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("connection %s is closed", c.id)
			}
		}()
		select {
		case c.send <- outbound{frame: frame}:
		default:
			err = fmt.Errorf("connection %s outbound queue is full", c.id)
		}
	}()
	if err != nil {
		c.Close()
	}
	return err
}

// Send serializes msg and enqueues it, injecting the ack correlation id
// into object payloads.
func (c *Conn) Send(msg any, ack string) error {
	frame, err := protocol.Marshal(msg, ack)
	if err != nil {
		logging.Error(context.Background(), "Failed to serialize outgoing message",
			zap.String("connId", c.id), zap.Error(err))
		return err
	}
	return c.SendRaw(frame)
}

// SendAndClose best-effort sends msg and then closes the connection.
func (c *Conn) SendAndClose(msg any) {
	_ = c.Send(msg, "")
	c.Close()
}

// Close enqueues the close signal exactly once. The write pump drains
// frames already queued, emits a close frame, and tears the socket down.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		select {
		case c.send <- outbound{close: true}:
		default:
			// Queue full; tear down the socket directly so the pump exits.
			_ = c.conn.Close()
		}
	})
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
