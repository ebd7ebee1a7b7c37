package router

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/handler"
)

// SetupWebSocketRouter registers the realtime endpoint. No auth middleware:
// the connection authenticates with its first auth frame.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleConnection)
}
