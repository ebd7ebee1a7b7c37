package handler

import (
	"github.com/labstack/echo/v4"

	ws "duochat/internal/infrastructure/websocket"
	"duochat/pkg/response"
)

type HealthHandler struct {
	hub *ws.Hub
}

func NewHealthHandler(hub *ws.Hub) *HealthHandler {
	return &HealthHandler{
		hub: hub,
	}
}

func (h *HealthHandler) Health(c echo.Context) error {
	return response.Success(c, map[string]interface{}{
		"status":      "ok",
		"connections": h.hub.ClientCount(),
	})
}
