package sse

import (
	"github.com/gin-gonic/gin"
)

// InitSSERouter mounts the stream on path for every method so that non-GET
// requests are answered by the handler rather than the router.
func InitSSERouter(rg *gin.RouterGroup, path string, handler *ServerSentEventHandler) {
	rg.Any(path, handler.Connect)

	apiGroup := rg.Group("/api/v1/sse")
	apiGroup.GET("/connections", handler.GetConnections)
}
