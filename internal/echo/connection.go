package echo

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Buffers that grew past this are dropped after the message is echoed.
const maxRetainedBuffer = 1 << 20

// connection is one accepted WebSocket client. Only its serving goroutine
// reads or writes data messages; the shutdown callback only sends control
// frames, which gorilla allows concurrently.
type connection struct {
	id     string
	server *Server
	ws     *websocket.Conn
	buf    bytes.Buffer
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

func newConnection(s *Server) *connection {
	id := uuid.NewString()
	return &connection{
		id:     id,
		server: s,
		logger: s.logger.With(zap.String("conn", id)),
		state:  StateConnecting,
	}
}

// transition moves the connection to the next state
func (c *connection) transition(to State) error {
	c.mu.Lock()
	from := c.state
	if !from.canMoveTo(to) {
		c.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	c.state = to
	c.mu.Unlock()

	c.logger.Debug("connection state", zap.Stringer("from", from), zap.Stringer("to", to))
	if hook := c.server.opts.OnStateChange; hook != nil {
		hook(c.id, from, to)
	}
	return nil
}

// beginClose moves an open connection to Closing. It reports false when
// another goroutine already started the close.
func (c *connection) beginClose() bool {
	return c.transition(StateClosing) == nil
}

// abandon closes a connection whose handshake failed
func (c *connection) abandon() {
	if err := c.transition(StateClosed); err != nil {
		c.logger.Warn("abandon connection", zap.Error(err))
	}
}

func (c *connection) current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) serve(ctx context.Context, ws *websocket.Conn) {
	c.ws = ws
	metrics := c.server.metrics

	ws.SetReadLimit(c.server.opts.ReadLimit)
	ws.SetCloseHandler(c.handleClose)

	if err := c.transition(StateOpen); err != nil {
		c.logger.Warn("open connection", zap.Error(err))
		ws.Close()
		return
	}
	metrics.ConnectionsTotal.Inc()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	stop := context.AfterFunc(ctx, c.goingAway)
	defer stop()
	defer c.finish()

	for {
		messageType, r, err := ws.NextReader()
		if err != nil {
			c.readFailed(err)
			return
		}

		c.buf.Reset()
		if _, err := c.buf.ReadFrom(r); err != nil {
			c.readFailed(err)
			return
		}

		if c.current() != StateOpen {
			// Closing: drain until the peer's close frame arrives
			c.logger.Debug("dropping message after close", zap.Int("bytes", c.buf.Len()))
			continue
		}

		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(messageType, c.buf.Bytes()); err != nil {
			c.logger.Debug("echo write failed", zap.Error(err))
			return
		}

		metrics.MessagesEchoed.WithLabelValues(messageTypeName(messageType)).Inc()
		metrics.BytesEchoed.Add(float64(c.buf.Len()))

		if c.buf.Cap() > maxRetainedBuffer {
			c.buf = bytes.Buffer{}
		}
	}
}

// handleClose answers a client close frame with the same status code.
func (c *connection) handleClose(code int, text string) error {
	if !c.beginClose() {
		// We sent the first close frame; this is the reply
		return nil
	}
	if code == websocket.CloseNoStatusReceived {
		code = websocket.CloseNormalClosure
	}
	msg := websocket.FormatCloseMessage(code, "")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("close reply failed", zap.Error(err))
	}
	return nil
}

// goingAway runs when the server shuts down
func (c *connection) goingAway() {
	if !c.beginClose() {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.ws.SetReadDeadline(time.Now().Add(closeGrace))
}

func (c *connection) readFailed(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		// gorilla has already sent 1009
		c.server.metrics.Rejected.WithLabelValues("read_limit").Inc()
		c.logger.Debug("message exceeds read limit", zap.Int64("limit", c.server.opts.ReadLimit))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.logger.Debug("connection closed by peer", zap.Error(err))
	default:
		c.logger.Debug("connection aborted", zap.Error(err))
	}
}

func (c *connection) finish() {
	c.beginClose()
	c.ws.Close()
	if err := c.transition(StateClosed); err != nil {
		c.logger.Warn("close connection", zap.Error(err))
	}
}

func messageTypeName(t int) string {
	switch t {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	default:
		return "other"
	}
}
