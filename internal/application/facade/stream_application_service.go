package facade

import (
	"context"
	"sync"
	"time"

	"go-event-stream/internal/control"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
)

// StreamApplicationService owns the server-side shutdown sequence: flag
// termination, give every stream one grace window to send its farewell, then
// report that the transport may be closed.
type StreamApplicationService struct {
	state  *control.State
	hub    *hub.Hub
	grace  time.Duration
	logger logger.Logger

	once sync.Once
	done chan struct{}
}

func NewStreamApplicationService(
	state *control.State,
	hubInstance *hub.Hub,
	grace time.Duration,
	logger logger.Logger,
) *StreamApplicationService {
	return &StreamApplicationService{
		state:  state,
		hub:    hubInstance,
		grace:  grace,
		logger: logger.WithField("service", "stream"),
		done:   make(chan struct{}),
	}
}

// Shutdown runs the sequence once; later calls wait for the first to finish.
// It returns early if ctx ends.
func (s *StreamApplicationService) Shutdown(ctx context.Context) {
	s.once.Do(func() {
		s.state.Terminate()
		s.logger.Infof("termination flagged, waiting up to %v for %d streams", s.grace, s.hub.ConnectionCount())

		graceCtx, cancel := context.WithTimeout(ctx, s.grace)
		defer cancel()

		if err := s.hub.WaitIdle(graceCtx); err != nil {
			s.logger.Warnf("%d streams still open after grace window", s.hub.ConnectionCount())
		} else {
			s.logger.Info("all streams sent their farewell")
		}
		close(s.done)
	})

	select {
	case <-s.done:
	case <-ctx.Done():
	}
}

// Done is closed when the grace window has ended.
func (s *StreamApplicationService) Done() <-chan struct{} {
	return s.done
}
