package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-event-stream/internal/control"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
)

func setupControl(t *testing.T) (*gin.Engine, *control.State, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(logger.Nop())
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })

	shutdowns := new(int)
	state := control.NewState()
	d := control.NewDispatcher(state, func() { *shutdowns++ })
	ch := NewControlHandler(d, h, logger.Nop())

	router := gin.New()
	router.GET("/control", ch.Status)
	router.POST("/control/:command", ch.Execute)
	return router, state, shutdowns
}

func do(router http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestControlHandler_StartStop(t *testing.T) {
	router, state, _ := setupControl(t)

	rec := do(router, http.MethodPost, "/control/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"command":"start","sending":true,"terminating":false,"connections":{}}`, rec.Body.String())
	assert.True(t, state.Sending())

	rec = do(router, http.MethodPost, "/control/STOP")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, state.Sending())
}

func TestControlHandler_Shutdown(t *testing.T) {
	router, state, shutdowns := setupControl(t)

	rec := do(router, http.MethodPost, "/control/shutdown")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, state.Terminating())
	assert.Equal(t, 1, *shutdowns)
}

func TestControlHandler_UnknownCommand(t *testing.T) {
	router, state, _ := setupControl(t)

	rec := do(router, http.MethodPost, "/control/reboot")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown command")
	assert.Equal(t, control.Snapshot{}, state.Snapshot())
}

func TestControlHandler_Status(t *testing.T) {
	router, state, _ := setupControl(t)
	state.Start()

	rec := do(router, http.MethodGet, "/control")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sending":true,"terminating":false,"connections":{}}`, rec.Body.String())
}
