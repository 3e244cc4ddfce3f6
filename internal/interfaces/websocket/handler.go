package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-event-stream/internal/emitter"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
)

// WebSocketHandler serves the same stream as the SSE endpoint, one encoded
// frame per text message.
type WebSocketHandler struct {
	hub          *hub.Hub
	emitter      *emitter.Emitter
	writeTimeout time.Duration
	logger       logger.Logger
	upgrader     websocket.Upgrader
}

func NewWebSocketHandler(
	hubInstance *hub.Hub,
	em *emitter.Emitter,
	writeTimeout time.Duration,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hubInstance,
		emitter:      em,
		writeTimeout: writeTimeout,
		logger:       logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("failed to upgrade connection: %v", err)
		return
	}

	connID := "ws-" + uuid.NewString()
	log := h.logger.WithField("connection_id", connID)

	wsConn := hub.NewWebSocketConnection(c.Request.Context(), connID, conn, h.writeTimeout, h.logger)
	defer func() {
		_ = wsConn.Close()
		_ = h.hub.UnregisterConnection(connID)
	}()

	if err := h.hub.RegisterConnection(wsConn); err != nil {
		log.Errorf("failed to register connection: %v", err)
		return
	}

	log.Info("websocket stream opened")
	if err := h.emitter.Serve(wsConn.Context(), wsConn); err != nil {
		log.Warnf("websocket stream ended with error: %v", err)
		return
	}
	log.Info("websocket stream closed")
}

func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnections()
	connectionInfo := make([]gin.H, 0, len(connections))

	for _, conn := range connections {
		if conn.Type() != hub.TypeWebSocket {
			continue
		}
		connectionInfo = append(connectionInfo, gin.H{
			"id":     conn.ID(),
			"type":   conn.Type(),
			"closed": conn.IsClosed(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connectionInfo),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}
