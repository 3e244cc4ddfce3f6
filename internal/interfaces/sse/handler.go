package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-event-stream/internal/emitter"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
)

const HeaderLastEventID = "Last-Event-ID"

type ServerSentEventHandler struct {
	hub          *hub.Hub
	emitter      *emitter.Emitter
	writeTimeout time.Duration
	logger       logger.Logger
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	em *emitter.Emitter,
	writeTimeout time.Duration,
	logger logger.Logger,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:          hubInstance,
		emitter:      em,
		writeTimeout: writeTimeout,
		logger:       logger.WithField("handler", "sse"),
	}
}

// Connect answers GET with an event stream that lives until the farewell is
// sent or the client goes away. Any other method gets a bare 405.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.Header("Allow", http.MethodGet)
		c.AbortWithStatus(http.StatusMethodNotAllowed)
		return
	}

	if !h.hub.IsRunning() {
		h.logger.Error("hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	connID := "conn-" + uuid.NewString()
	log := h.logger.WithField("connection_id", connID)

	// Ids are per connection, so a resume position cannot be honored.
	if last := c.GetHeader(HeaderLastEventID); last != "" {
		log.Debugf("client reconnected after event %s, starting a fresh sequence", last)
	}

	conn := hub.NewSSEConnection(c.Request.Context(), connID, c.Writer, h.writeTimeout, h.logger)
	defer func() {
		_ = conn.Close()
		_ = h.hub.UnregisterConnection(connID)
	}()

	if err := h.hub.RegisterConnection(conn); err != nil {
		log.Errorf("failed to register connection: %v", err)
		return
	}

	log.Infof("stream opened from %s", c.ClientIP())
	if err := h.emitter.Serve(conn.Context(), conn); err != nil {
		log.Warnf("stream ended with error: %v", err)
		return
	}
	log.Info("stream closed")
}

// GetConnections lists the streams currently registered.
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnections()
	connectionInfo := make([]gin.H, 0, len(connections))

	for _, conn := range connections {
		if conn.Type() != hub.TypeSSE {
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
