package hub

import (
	"context"

	"go-event-stream/internal/protocol/frame"
)

// Connection is one open event stream, whatever transport carries it.
type Connection interface {
	ID() string
	Type() string
	// Send writes one event frame and flushes it to the peer.
	Send(ctx context.Context, ev frame.Event) error
	// Heartbeat writes a comment frame that clients never surface as an event.
	Heartbeat(ctx context.Context) error
	Close() error
	IsClosed() bool
	Context() context.Context
}
