package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-event-stream/internal/application/facade"
	"go-event-stream/internal/client"
	"go-event-stream/internal/control"
	"go-event-stream/internal/emitter"
	"go-event-stream/internal/infrastructure/config"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/infrastructure/server"
	"go-event-stream/internal/protocol/frame"
)

type testApp struct {
	app        *Application
	dispatcher *control.Dispatcher
	hub        *hub.Hub
	url        string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Stream.TickInterval = 10 * time.Millisecond
	cfg.Stream.GracePeriod = time.Second
	log := logger.Nop()

	h := hub.New(log)
	require.NoError(t, h.Start(context.Background()))

	state := control.NewState()
	stream := facade.NewStreamApplicationService(state, h, cfg.Stream.GracePeriod, log)
	d := control.NewDispatcher(state, func() { go stream.Shutdown(context.Background()) })
	em := emitter.New(state, log, emitter.WithInterval(cfg.Stream.TickInterval))

	srv := server.NewHTTPServer(InitRouter(cfg, h, em, d, log), server.Options{Addr: cfg.Server.Addr})
	addr, err := srv.Listen()
	require.NoError(t, err)

	return &testApp{
		app:        newApplication(log, srv, h, stream),
		dispatcher: d,
		hub:        h,
		url:        "http://" + addr.String() + cfg.Stream.Path,
	}
}

type collector struct {
	mu     sync.Mutex
	events []frame.Event
}

func (c *collector) handle(_ context.Context, ev frame.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) snapshot() []frame.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame.Event(nil), c.events...)
}

func TestApplication_ShutdownReachesClient(t *testing.T) {
	ta := newTestApp(t)

	appDone := make(chan error, 1)
	go func() { appDone <- ta.app.Run(context.Background()) }()

	events := &collector{}
	c := client.New(ta.url, client.WithReconnectDelay(10*time.Millisecond))
	clientDone := make(chan error, 1)
	go func() { clientDone <- c.Run(context.Background(), events.handle) }()

	require.Eventually(t, func() bool { return ta.hub.ConnectionCount() == 1 }, 5*time.Second, 5*time.Millisecond)
	_, err := ta.dispatcher.Execute("start")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(events.snapshot()) >= 3 }, 5*time.Second, 5*time.Millisecond)

	_, err = ta.dispatcher.Execute("shutdown")
	require.NoError(t, err)

	select {
	case err := <-clientDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop after shutdown")
	}
	select {
	case err := <-appDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop after shutdown")
	}

	got := events.snapshot()
	last := got[len(got)-1]
	assert.Equal(t, emitter.EventShutdown, last.Type)
	assert.Equal(t, emitter.FarewellMessage, last.Data)
	for _, ev := range got[:len(got)-1] {
		assert.Equal(t, emitter.EventTick, ev.Type)
	}
	assert.Equal(t, int64(1), c.Attempts(), "client never reconnects after the farewell")
	assert.Equal(t, last.ID, c.LastEventID())
}

func TestApplication_StopsOnContextCancel(t *testing.T) {
	ta := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	appDone := make(chan error, 1)
	go func() { appDone <- ta.app.Run(ctx) }()

	cancel()
	select {
	case err := <-appDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop after cancel")
	}
	assert.True(t, ta.dispatcher.State().Terminating())
	assert.False(t, ta.hub.IsRunning())
}
