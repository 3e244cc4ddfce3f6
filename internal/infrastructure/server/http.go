package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

type HTTPServer struct {
	handler http.Handler
	opts    Options

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, opts Options) *HTTPServer {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	return &HTTPServer{
		handler: handler,
		opts:    opts,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			IdleTimeout:       opts.IdleTimeout,
			// Streams stay open indefinitely; per-write deadlines are set by
			// the connections themselves.
			WriteTimeout: 0,
		},
	}
}

// Listen binds the address without serving yet, so callers can learn the
// chosen port before Start.
func (h *HTTPServer) Listen() (net.Addr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		ln, err := net.Listen("tcp", h.opts.Addr)
		if err != nil {
			return nil, err
		}
		h.listener = ln
	}
	return h.listener.Addr(), nil
}

// Start serves until the server is stopped. It returns nil after Stop or
// Close. Request contexts are not tied to ctx so that streams can still send
// their farewell after a shutdown signal.
func (h *HTTPServer) Start(_ context.Context) error {
	if _, err := h.Listen(); err != nil {
		return err
	}

	err := h.srv.Serve(h.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop waits for in-flight requests until ctx ends, then force-closes what
// is left. Long-lived streams never finish on their own.
func (h *HTTPServer) Stop(ctx context.Context) error {
	err := h.srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return h.srv.Close()
	}
	return err
}

func (h *HTTPServer) Close() error {
	return h.srv.Close()
}
