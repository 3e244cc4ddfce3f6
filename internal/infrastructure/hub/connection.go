package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/protocol/frame"
)

const (
	TypeSSE       = "sse"
	TypeWebSocket = "websocket"

	ContentTypeEventStream = "text/event-stream; charset=utf-8"
)

var ErrConnectionClosed = errors.New("connection is closed")

// SSEConnection streams frames over a held-open HTTP response.
type SSEConnection struct {
	id           string
	writer       *frame.Writer
	rc           *http.ResponseController
	writeTimeout time.Duration
	writeMu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger
}

// NewSSEConnection sends the event-stream response headers and returns the
// connection. The response must not have been written to yet.
func NewSSEConnection(
	ctx context.Context,
	id string,
	w http.ResponseWriter,
	writeTimeout time.Duration,
	logger logger.Logger,
) *SSEConnection {
	rctx, cancel := context.WithCancel(ctx)

	conn := &SSEConnection{
		id:           id,
		writer:       frame.NewWriter(w),
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
		ctx:          rctx,
		cancel:       cancel,
		logger:       logger.WithField("connection_id", id),
	}

	h := w.Header()
	h.Set("Content-Type", ContentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // For nginx
	w.WriteHeader(http.StatusOK)
	if err := conn.rc.Flush(); err != nil {
		conn.logger.Debugf("header flush failed: %v", err)
	}

	return conn
}

func (c *SSEConnection) ID() string {
	return c.id
}

func (c *SSEConnection) Type() string {
	return TypeSSE
}

func (c *SSEConnection) Send(ctx context.Context, ev frame.Event) error {
	return c.write(ctx, func() error { return c.writer.WriteEvent(ev) })
}

func (c *SSEConnection) Heartbeat(ctx context.Context) error {
	return c.write(ctx, func() error { return c.writer.WriteComment(frame.DefaultHeartbeat) })
}

func (c *SSEConnection) write(ctx context.Context, fn func() error) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		err := c.rc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if err := fn(); err != nil {
		c.logger.Debugf("write failed: %v", err)
		_ = c.Close()
		return err
	}
	return nil
}

func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	c.logger.Debug("SSE connection closed")
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// WebSocketConnection carries the same frames, one text message per frame.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	writeMu      sync.Mutex
	writeTimeout time.Duration
	pongTimeout  time.Duration
	pingPeriod   time.Duration

	logger logger.Logger
}

const DefaultPongTimeout = 60 * time.Second

type WebSocketOption func(*WebSocketConnection)

// WithPongTimeout sets how long the peer may stay silent. Pings go out twice
// per window.
func WithPongTimeout(d time.Duration) WebSocketOption {
	return func(c *WebSocketConnection) {
		if d > 0 {
			c.pongTimeout = d
		}
	}
}

func NewWebSocketConnection(
	ctx context.Context,
	id string,
	conn *websocket.Conn,
	writeTimeout time.Duration,
	logger logger.Logger,
	opts ...WebSocketOption,
) *WebSocketConnection {
	rctx, cancel := context.WithCancel(ctx)

	wsConn := &WebSocketConnection{
		id:           id,
		conn:         conn,
		ctx:          rctx,
		cancel:       cancel,
		writeTimeout: writeTimeout,
		pongTimeout:  DefaultPongTimeout,
		logger:       logger.WithField("connection_id", id),
	}
	for _, opt := range opts {
		opt(wsConn)
	}
	wsConn.pingPeriod = wsConn.pongTimeout / 2

	wsConn.conn.SetReadDeadline(time.Now().Add(wsConn.pongTimeout))
	wsConn.conn.SetPongHandler(func(string) error {
		return wsConn.conn.SetReadDeadline(time.Now().Add(wsConn.pongTimeout))
	})

	go wsConn.readPump()
	go wsConn.pingPump()

	return wsConn
}

func (c *WebSocketConnection) ID() string {
	return c.id
}

func (c *WebSocketConnection) Type() string {
	return TypeWebSocket
}

func (c *WebSocketConnection) Send(ctx context.Context, ev frame.Event) error {
	payload, err := frame.Encode(ev)
	if err != nil {
		return err
	}
	return c.write(ctx, payload)
}

func (c *WebSocketConnection) Heartbeat(ctx context.Context) error {
	return c.write(ctx, frame.EncodeComment(frame.DefaultHeartbeat))
}

func (c *WebSocketConnection) write(ctx context.Context, payload []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Debugf("write failed: %v", err)
		_ = c.Close()
		return err
	}
	return nil
}

func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := c.conn.Close()

	c.logger.Debug("WebSocket connection closed")
	return err
}

func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

// readPump discards inbound messages; the stream is one-way. It exists to
// process control frames and notice when the peer goes away.
func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				c.logger.Debugf("websocket read error: %v", err)
			}
			return
		}
	}
}

// pingPump keeps the peer answering with pongs, which push the read deadline
// forward. Browsers and gorilla clients reply to pings on their own.
func (c *WebSocketConnection) pingPump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.pingPeriod)
			if c.writeTimeout > 0 {
				deadline = time.Now().Add(c.writeTimeout)
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debugf("failed to send ping: %v", err)
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
