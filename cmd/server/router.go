package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-event-stream/internal/control"
	"go-event-stream/internal/emitter"
	"go-event-stream/internal/infrastructure/config"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
	v1 "go-event-stream/internal/interfaces/rest/v1"
	"go-event-stream/internal/interfaces/rest/v1/handler"
	"go-event-stream/internal/interfaces/sse"
	"go-event-stream/internal/interfaces/websocket"
)

func InitRouter(
	cfg *config.Config,
	hubInstance *hub.Hub,
	em *emitter.Emitter,
	dispatcher *control.Dispatcher,
	log logger.Logger,
) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS headers only; preflights fall through to the handlers, and the
	// stream endpoint rejects them like any other non-GET method.
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/hub/status", func(c *gin.Context) {
		isRunning := hubInstance.IsRunning()
		log.Debugf(
			"hub status check - running: %v, connections: %d",
			isRunning,
			hubInstance.ConnectionCount(),
		)
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": isRunning,
			"connections": hubInstance.ConnectionCount(),
		})
	})

	sse.InitSSERouter(
		rootGroup,
		cfg.Stream.Path,
		sse.NewServerSentEventHandler(hubInstance, em, cfg.Stream.WriteTimeout, log),
	)
	websocket.InitWebSocketRouter(
		rootGroup,
		websocket.NewWebSocketHandler(hubInstance, em, cfg.Stream.WriteTimeout, log),
	)
	v1.InitControlRouter(rootGroup, handler.NewControlHandler(dispatcher, hubInstance, log))

	return router
}
