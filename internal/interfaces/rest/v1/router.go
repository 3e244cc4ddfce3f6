package v1

import (
	"github.com/gin-gonic/gin"

	"go-event-stream/internal/interfaces/rest/v1/handler"
)

func InitControlRouter(rg *gin.RouterGroup, controlHandler *handler.ControlHandler) {
	apiGroup := rg.Group("/api/v1/control")
	apiGroup.GET("", controlHandler.Status)
	apiGroup.POST("/:command", controlHandler.Execute)
}
