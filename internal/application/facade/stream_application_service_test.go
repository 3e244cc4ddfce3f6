package facade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-event-stream/internal/control"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/protocol/frame"
)

type stubConnection struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newStubConnection(id string) *stubConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &stubConnection{id: id, ctx: ctx, cancel: cancel}
}

func (s *stubConnection) ID() string                              { return s.id }
func (s *stubConnection) Type() string                            { return hub.TypeSSE }
func (s *stubConnection) Send(context.Context, frame.Event) error { return nil }
func (s *stubConnection) Heartbeat(context.Context) error         { return nil }
func (s *stubConnection) Context() context.Context                { return s.ctx }
func (s *stubConnection) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
func (s *stubConnection) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancel()
	return nil
}

func startHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New(logger.Nop())
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })
	return h
}

func TestShutdownFlagsTermination(t *testing.T) {
	state := control.NewState()
	svc := NewStreamApplicationService(state, startHub(t), time.Second, logger.Nop())

	svc.Shutdown(context.Background())

	assert.True(t, state.Terminating())
	select {
	case <-svc.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
}

func TestShutdownWaitsForStreams(t *testing.T) {
	h := startHub(t)
	conn := newStubConnection("conn-1")
	require.NoError(t, h.RegisterConnection(conn))
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	svc := NewStreamApplicationService(control.NewState(), h, 5*time.Second, logger.Nop())
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close()
	}()

	start := time.Now()
	svc.Shutdown(context.Background())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, h.ConnectionCount())
}

func TestShutdownGivesUpAfterGrace(t *testing.T) {
	h := startHub(t)
	require.NoError(t, h.RegisterConnection(newStubConnection("stuck")))
	require.Eventually(t, func() bool { return h.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	svc := NewStreamApplicationService(control.NewState(), h, 30*time.Millisecond, logger.Nop())
	svc.Shutdown(context.Background())

	<-svc.Done()
	assert.Equal(t, 1, h.ConnectionCount())
}

func TestShutdownRunsOnce(t *testing.T) {
	svc := NewStreamApplicationService(control.NewState(), startHub(t), time.Second, logger.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Shutdown(context.Background())
		}()
	}
	wg.Wait()
	<-svc.Done()
}
