package websocket

import (
	"github.com/gin-gonic/gin"
)

func InitWebSocketRouter(rg *gin.RouterGroup, handler *WebSocketHandler) {
	rg.GET("/ws", handler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", handler.GetConnections)
}
