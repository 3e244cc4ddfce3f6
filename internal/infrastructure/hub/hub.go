package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-event-stream/internal/infrastructure/logger"
)

const (
	cleanupInterval  = 30 * time.Second
	idlePollInterval = 20 * time.Millisecond
	registerTimeout  = 5 * time.Second
)

// Hub keeps track of every open stream so the server can report them and
// wait for them to drain during shutdown. Streams never talk to each other
// through the hub.
type Hub struct {
	connections   map[string]Connection
	connectionsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	logger logger.Logger

	unregister chan string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(logger logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string]Connection),
		logger:      logger.WithField("component", "hub"),
		unregister:  make(chan string, 100),
	}
}

// Start starts the hub loop.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	h.running = true

	go h.run()

	h.logger.Info("hub started")
	return nil
}

// Stop ends the hub loop and force-closes every connection still open.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		h.logger.Warn("hub loop did not stop before the deadline")
	}

	h.connectionsMu.Lock()
	for _, conn := range h.connections {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("failed to close connection %s: %v", conn.ID(), err)
		}
	}
	h.connections = make(map[string]Connection)
	h.connectionsMu.Unlock()

	h.running = false
	h.logger.Info("hub stopped")
	return nil
}

func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// RegisterConnection stores conn before returning, so a WaitIdle that starts
// after it never misses the stream.
func (h *Hub) RegisterConnection(conn Connection) error {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if !h.running {
		return fmt.Errorf("hub is not running")
	}
	if h.ctx.Err() != nil {
		return fmt.Errorf("hub is shutting down")
	}

	h.handleRegister(conn)
	return nil
}

func (h *Hub) UnregisterConnection(connID string) error {
	if !h.IsRunning() {
		return fmt.Errorf("hub is not running")
	}

	select {
	case h.unregister <- connID:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("hub is shutting down")
	case <-time.After(registerTimeout):
		return fmt.Errorf("timeout unregistering connection")
	}
}

func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	conn, exists := h.connections[connID]
	return conn, exists
}

func (h *Hub) GetConnections() []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	return connections
}

// CountByType returns open connections grouped by transport type.
func (h *Hub) CountByType() map[string]int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	counts := make(map[string]int)
	for _, conn := range h.connections {
		counts[conn.Type()]++
	}
	return counts
}

func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// WaitIdle blocks until no connection is registered or ctx ends. It is the
// grace window between flagging shutdown and closing the transport.
func (h *Hub) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if h.ConnectionCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Hub) run() {
	defer close(h.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case connID := <-h.unregister:
			h.handleUnregister(connID)

		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-h.ctx.Done():
			h.logger.Debug("hub run loop stopped")
			return
		}
	}
}

func (h *Hub) handleRegister(conn Connection) {
	// The stream may already be over if its client left before registration.
	if conn.IsClosed() {
		return
	}

	h.connectionsMu.Lock()
	h.connections[conn.ID()] = conn
	h.connectionsMu.Unlock()

	h.logger.Infof("connection %s registered (type: %s)", conn.ID(), conn.Type())

	go func() {
		select {
		case <-conn.Context().Done():
			_ = h.UnregisterConnection(conn.ID())
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) handleUnregister(connID string) {
	h.connectionsMu.Lock()
	conn, exists := h.connections[connID]
	if exists {
		delete(h.connections, connID)
	}
	h.connectionsMu.Unlock()

	if exists {
		_ = conn.Close()
		h.logger.Infof("connection %s unregistered", connID)
	}
}

func (h *Hub) cleanupClosedConnections() {
	h.connectionsMu.Lock()
	defer h.connectionsMu.Unlock()

	for id, conn := range h.connections {
		if conn.IsClosed() {
			delete(h.connections, id)
			h.logger.Infof("cleaned up closed connection %s", id)
		}
	}
}
