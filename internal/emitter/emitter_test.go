package emitter

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-event-stream/internal/control"
	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/protocol/frame"
)

const heartbeat = "<heartbeat>"

type recordingConn struct {
	ctx context.Context

	mu      sync.Mutex
	frames  []frame.Event
	failing error
	closed  bool
}

func newRecordingConn() *recordingConn {
	return &recordingConn{ctx: context.Background()}
}

func (c *recordingConn) ID() string   { return "conn-test" }
func (c *recordingConn) Type() string { return "test" }
func (c *recordingConn) Send(_ context.Context, ev frame.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing != nil {
		return c.failing
	}
	c.frames = append(c.frames, ev)
	return nil
}
func (c *recordingConn) Heartbeat(_ context.Context) error {
	return c.Send(context.Background(), frame.Event{Type: heartbeat})
}
func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *recordingConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
func (c *recordingConn) Context() context.Context { return c.ctx }

func (c *recordingConn) snapshot() []frame.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame.Event(nil), c.frames...)
}

func fixedClock() time.Time {
	return time.UnixMilli(1700000000123)
}

func TestStreamStartsInHeartbeat(t *testing.T) {
	state := control.NewState()
	conn := newRecordingConn()
	stream := New(state, logger.Nop(), WithClock(fixedClock)).NewStream(conn)

	got, err := stream.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateHeartbeat, got)
	assert.Equal(t, []frame.Event{{Type: heartbeat}}, conn.snapshot())
	assert.Zero(t, stream.LastID())
}

func TestStreamControlIndependence(t *testing.T) {
	state := control.NewState()
	conn := newRecordingConn()
	stream := New(state, logger.Nop(), WithClock(fixedClock)).NewStream(conn)
	ctx := context.Background()

	s1, err := stream.Step(ctx)
	require.NoError(t, err)

	state.Start()
	s2, err := stream.Step(ctx)
	require.NoError(t, err)

	state.Stop()
	s3, err := stream.Step(ctx)
	require.NoError(t, err)

	assert.Equal(t, []State{StateHeartbeat, StateSending, StateHeartbeat}, []State{s1, s2, s3})
	assert.Equal(t, []frame.Event{
		{Type: heartbeat},
		{Type: EventTick, ID: "1", Data: "tick @1700000000123"},
		{Type: heartbeat},
	}, conn.snapshot())
	assert.Equal(t, uint64(1), stream.LastID())
}

func TestStreamIDsIncrementPerConnection(t *testing.T) {
	state := control.NewState()
	state.Start()
	em := New(state, logger.Nop(), WithClock(fixedClock))
	ctx := context.Background()

	a, b := newRecordingConn(), newRecordingConn()
	sa, sb := em.NewStream(a), em.NewStream(b)
	for i := 0; i < 3; i++ {
		_, err := sa.Step(ctx)
		require.NoError(t, err)
	}
	_, err := sb.Step(ctx)
	require.NoError(t, err)

	ids := func(events []frame.Event) []string {
		out := make([]string, 0, len(events))
		for _, ev := range events {
			out = append(out, ev.ID)
		}
		return out
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids(a.snapshot()))
	assert.Equal(t, []string{"1"}, ids(b.snapshot()))
}

func TestStreamFarewellThenClosed(t *testing.T) {
	state := control.NewState()
	state.Start()
	conn := newRecordingConn()
	stream := New(state, logger.Nop(), WithClock(fixedClock)).NewStream(conn)
	ctx := context.Background()

	_, err := stream.Step(ctx)
	require.NoError(t, err)

	state.Terminate()
	got, err := stream.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got)

	got, err = stream.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got)

	frames := conn.snapshot()
	require.Len(t, frames, 2, "no frames after the farewell")
	assert.Equal(t, frame.Event{Type: EventShutdown, ID: "2", Data: FarewellMessage}, frames[1])
}

func TestStreamTerminateWinsOverSending(t *testing.T) {
	state := control.NewState()
	state.Start()
	state.Terminate()
	conn := newRecordingConn()

	got, err := New(state, logger.Nop()).NewStream(conn).Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got)
	assert.Equal(t, []frame.Event{{Type: EventShutdown, ID: "1", Data: FarewellMessage}}, conn.snapshot())
}

func TestStreamWriteFailure(t *testing.T) {
	state := control.NewState()
	conn := newRecordingConn()
	conn.failing = errors.New("broken pipe")

	_, err := New(state, logger.Nop()).NewStream(conn).Step(context.Background())
	assert.ErrorIs(t, err, conn.failing)
}

func TestServeRunsUntilTerminate(t *testing.T) {
	state := control.NewState()
	state.Start()
	conn := newRecordingConn()
	em := New(state, logger.Nop(), WithInterval(5*time.Millisecond), WithClock(fixedClock))

	done := make(chan error, 1)
	go func() { done <- em.Serve(context.Background(), conn) }()

	require.Eventually(t, func() bool { return len(conn.snapshot()) >= 3 }, time.Second, 5*time.Millisecond)
	state.Terminate()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after terminate")
	}

	frames := conn.snapshot()
	for i, ev := range frames {
		assert.Equal(t, strconv.Itoa(i+1), ev.ID)
		if i < len(frames)-1 {
			assert.Equal(t, EventTick, ev.Type)
		}
	}
	assert.Equal(t, EventShutdown, frames[len(frames)-1].Type)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	state := control.NewState()
	conn := newRecordingConn()
	em := New(state, logger.Nop(), WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- em.Serve(ctx, conn) }()

	require.Eventually(t, func() bool { return len(conn.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	for _, ev := range conn.snapshot() {
		assert.Equal(t, heartbeat, ev.Type)
	}
}

func TestServeReturnsWriteError(t *testing.T) {
	state := control.NewState()
	conn := newRecordingConn()
	conn.failing = errors.New("connection reset by peer")

	err := New(state, logger.Nop(), WithInterval(time.Millisecond)).Serve(context.Background(), conn)
	assert.ErrorIs(t, err, conn.failing)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "heartbeat", StateHeartbeat.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
