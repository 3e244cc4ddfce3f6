// Package client consumes an event stream over HTTP, reconnecting after
// every disconnect and sending the last seen event id back to the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/protocol/frame"
)

const (
	DefaultURL            = "http://localhost:8080/sse"
	DefaultReconnectDelay = 2 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Minute

	HeaderLastEventID = "Last-Event-ID"
	ShutdownEvent     = "shutdown"
)

// Terminal outcomes end the loop; everything else is retried.
var (
	ErrShutdown = errors.New("server sent shutdown event")
	ErrClosed   = errors.New("client closed")
)

// Transient outcomes of one connection attempt.
var (
	ErrConnect          = errors.New("connect failed")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrStreamClosed     = errors.New("stream closed")
)

// Handler receives every assembled event. Returned errors and panics are
// logged and otherwise ignored.
type Handler func(ctx context.Context, ev frame.Event) error

// State is the position of the consumption loop.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnectWait
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnectWait:
		return "reconnect-wait"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Client struct {
	url            string
	http           *http.Client
	reconnectDelay time.Duration
	logger         logger.Logger

	active      atomic.Bool
	state       atomic.Int32
	lastEventID atomic.Value
	attempts    atomic.Int64
	delivered   atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

func New(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:            url,
		reconnectDelay: DefaultReconnectDelay,
		logger:         logger.Nop(),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = newHTTPClient(DefaultConnectTimeout, DefaultRequestTimeout)
	}
	c.logger = c.logger.WithField("component", "client")
	c.lastEventID.Store("")
	c.active.Store(true)
	return c
}

func newHTTPClient(connectTimeout, requestTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	return &http.Client{Transport: transport, Timeout: requestTimeout}
}

func (c *Client) URL() string {
	return c.url
}

// LastEventID is the id of the most recently delivered event, "" before any.
func (c *Client) LastEventID() string {
	return c.lastEventID.Load().(string)
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Active reports whether the loop may still connect.
func (c *Client) Active() bool {
	return c.active.Load()
}

// Attempts is the number of connection attempts made so far.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

// Delivered is the number of events handed to the handler.
func (c *Client) Delivered() int64 {
	return c.delivered.Load()
}

// Close stops the loop at its next suspension point. It does not interrupt a
// read in progress; the current connection ends on its own terms first.
// Safe to call from any goroutine, any number of times.
func (c *Client) Close() error {
	c.active.Store(false)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Run connects and streams until a shutdown event arrives, Close is called or
// ctx ends. It returns nil in the first two cases and ctx.Err() in the last.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-c.closed:
			cancel(ErrClosed)
		case <-waitCtx.Done():
		}
	}()

	operation := func() (struct{}, error) {
		if !c.Active() {
			return struct{}{}, backoff.Permanent(ErrClosed)
		}
		err := c.stream(ctx, handler)
		switch {
		case errors.Is(err, ErrShutdown):
			return struct{}{}, backoff.Permanent(err)
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case !c.Active():
			return struct{}{}, backoff.Permanent(ErrClosed)
		}
		c.state.Store(int32(StateReconnectWait))
		return struct{}{}, err
	}

	_, err := backoff.Retry(
		waitCtx,
		operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.reconnectDelay)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Infof("connection lost (%v), reconnecting in %v", err, next)
		}),
	)

	c.active.Store(false)
	c.state.Store(int32(StateDone))

	switch {
	case errors.Is(err, ErrShutdown):
		c.logger.Info("server announced shutdown, client stopping")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled):
		c.logger.Info("client closed")
		return nil
	default:
		return err
	}
}

// stream performs one connection attempt and reads it to the end. The
// returned error always says why the attempt ended.
func (c *Client) stream(ctx context.Context, handler Handler) error {
	c.state.Store(int32(StateConnecting))
	c.attempts.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if last := c.LastEventID(); last != "" {
		req.Header.Set(HeaderLastEventID, last)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	c.state.Store(int32(StateStreaming))
	c.logger.Infof("connected to %s", c.url)

	reader := frame.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
		if c.deliver(ctx, handler, ev) {
			return ErrShutdown
		}
	}
}

// deliver records the position and hands ev to the handler. It reports
// whether ev ends the session.
func (c *Client) deliver(ctx context.Context, handler Handler, ev frame.Event) bool {
	if ev.ID != "" {
		c.lastEventID.Store(ev.ID)
	}

	c.invoke(ctx, handler, ev)
	c.delivered.Add(1)

	if ev.IsType(ShutdownEvent) {
		c.active.Store(false)
		return true
	}
	return false
}

func (c *Client) invoke(ctx context.Context, handler Handler, ev frame.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("event handler panicked on event id=%q type=%q: %v", ev.ID, ev.Type, r)
		}
	}()

	if err := handler(ctx, ev); err != nil {
		c.logger.Warnf("event handler failed on event id=%q type=%q: %v", ev.ID, ev.Type, err)
	}
}
