package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-event-stream/internal/control"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
)

// ControlHandler exposes the operator commands over HTTP, mirroring the
// console.
type ControlHandler struct {
	dispatcher *control.Dispatcher
	hub        *hub.Hub
	logger     logger.Logger
}

type ControlStatusResponse struct {
	control.Snapshot
	Connections map[string]int `json:"connections"`
}

type ControlCommandResponse struct {
	Command string `json:"command"`
	ControlStatusResponse
}

func NewControlHandler(d *control.Dispatcher, hubInstance *hub.Hub, logger logger.Logger) *ControlHandler {
	return &ControlHandler{
		dispatcher: d,
		hub:        hubInstance,
		logger:     logger.WithField("handler", "control"),
	}
}

// Execute applies the command named in the path.
func (h *ControlHandler) Execute(c *gin.Context) {
	raw := c.Param("command")

	cmd, err := h.dispatcher.Execute(raw)
	if err != nil {
		if errors.Is(err, control.ErrUnknownCommand) {
			h.logger.Warnf("rejected control command: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to apply command",
		})
		return
	}

	h.logger.Infof("control command %q applied from %s", cmd, c.ClientIP())
	c.JSON(http.StatusOK, ControlCommandResponse{
		Command:               string(cmd),
		ControlStatusResponse: h.status(),
	})
}

func (h *ControlHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

func (h *ControlHandler) status() ControlStatusResponse {
	return ControlStatusResponse{
		Snapshot:    h.dispatcher.State().Snapshot(),
		Connections: h.hub.CountByType(),
	}
}
