// Package emitter runs the per-connection emission loop: one decision per
// tick between a tick event, a heartbeat comment and the farewell event.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go-event-stream/internal/control"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/protocol/frame"
)

const (
	EventTick     = "tick"
	EventShutdown = "shutdown"

	DefaultTickInterval = time.Second
	FarewellMessage     = "server shutting down"
)

// State is the position of one stream in its lifecycle.
type State int

const (
	StateHeartbeat State = iota
	StateSending
	StateTerminating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHeartbeat:
		return "heartbeat"
	case StateSending:
		return "sending"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Emitter builds streams that all observe the same control state.
type Emitter struct {
	control  *control.State
	interval time.Duration
	now      func() time.Time
	logger   logger.Logger
}

type Option func(*Emitter)

func WithInterval(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithClock replaces the time source used for tick payloads.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

func New(state *control.State, log logger.Logger, opts ...Option) *Emitter {
	e := &Emitter{
		control:  state,
		interval: DefaultTickInterval,
		now:      time.Now,
		logger:   log.WithField("component", "emitter"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emitter) Interval() time.Duration {
	return e.interval
}

// Serve runs the loop for conn until the farewell is sent, a write fails or
// ctx ends. A client going away is not an error; a failed write is returned
// for the caller to log.
func (e *Emitter) Serve(ctx context.Context, conn hub.Connection) error {
	stream := e.NewStream(conn)
	log := e.logger.WithField("connection_id", conn.ID())

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		state, err := stream.Step(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, hub.ErrConnectionClosed) {
				log.Debug("client went away")
				return nil
			}
			return fmt.Errorf("stream %s: %w", conn.ID(), err)
		}
		if state == StateClosed {
			log.Infof("farewell sent after %d events", stream.LastID())
			return nil
		}

		select {
		case <-ctx.Done():
			log.Debug("stream context ended")
			return nil
		case <-ticker.C:
		}
	}
}

// Stream is the state machine of one connection. Its id counter is local to
// the connection and starts over on every reconnect.
type Stream struct {
	emitter *Emitter
	conn    hub.Connection
	lastID  uint64
	state   State
}

func (e *Emitter) NewStream(conn hub.Connection) *Stream {
	return &Stream{emitter: e, conn: conn, state: StateHeartbeat}
}

func (s *Stream) State() State {
	return s.state
}

// LastID returns the id of the most recent event written, 0 if none.
func (s *Stream) LastID() uint64 {
	return s.lastID
}

// Step performs one tick: it reads the control flags once and writes exactly
// one frame. After the farewell the stream is closed and Step is a no-op.
func (s *Stream) Step(ctx context.Context) (State, error) {
	if s.state == StateClosed {
		return s.state, nil
	}

	ctrl := s.emitter.control
	switch {
	case ctrl.Terminating():
		s.state = StateTerminating
		if err := s.conn.Send(ctx, s.next(EventShutdown, FarewellMessage)); err != nil {
			return s.state, err
		}
		s.state = StateClosed

	case ctrl.Sending():
		s.state = StateSending
		payload := "tick @" + strconv.FormatInt(s.emitter.now().UnixMilli(), 10)
		if err := s.conn.Send(ctx, s.next(EventTick, payload)); err != nil {
			return s.state, err
		}

	default:
		s.state = StateHeartbeat
		if err := s.conn.Heartbeat(ctx); err != nil {
			return s.state, err
		}
	}
	return s.state, nil
}

func (s *Stream) next(eventType, data string) frame.Event {
	s.lastID++
	return frame.Event{
		Type: eventType,
		ID:   strconv.FormatUint(s.lastID, 10),
		Data: data,
	}
}
