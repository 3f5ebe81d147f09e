package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/portfoliokit/realtime-gateway/internal/protocol"
)

const (
	// writeWait bounds how long a single frame write may take.
	writeWait = 10 * time.Second

	// maxMessageSize caps inbound frames; protocol payloads are small.
	maxMessageSize = 64 * 1024
)

var errConnClosed = errors.New("connection closed")

// Conn wraps a websocket connection with the per-connection context, a write
// lock (gorilla allows only one concurrent writer), and a done channel that
// closes exactly once when the connection ends. Background work tied to the
// connection, like stats subscriptions, selects on Done.
type Conn struct {
	ws  *websocket.Conn
	ctx *ConnContext

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(wsc *websocket.Conn, ctx *ConnContext) *Conn {
	return &Conn{
		ws:   wsc,
		ctx:  ctx,
		done: make(chan struct{}),
	}
}

// Context returns the immutable per-connection context.
func (c *Conn) Context() *ConnContext {
	return c.ctx
}

// Done is closed when the connection ends, on every exit path.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send marshals the payload into an envelope and writes it as one frame.
func (c *Conn) Send(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(protocol.Envelope{Event: event, Payload: raw})
}

// SendError emits the uniform error envelope.
func (c *Conn) SendError(message, docs string) error {
	return c.Send(protocol.EventError, protocol.ErrorPayload{Message: message, Docs: docs})
}

// Close tears the connection down. Safe to call from any goroutine and on
// every exit path; only the first call has effect.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// closeWithCode sends a close frame with the given code before tearing down,
// so the peer sees a clean close instead of a TCP reset.
func (c *Conn) closeWithCode(code int, reason string) {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()

	c.Close()
}
