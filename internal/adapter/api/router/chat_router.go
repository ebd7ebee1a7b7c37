package router

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/handler"
	"duochat/internal/adapter/api/middleware"
)

// SetupChatRouter wires the chat REST surface. Every endpoint requires a
// verified bearer token.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.POST("", chatHandler.CreateChat)   // POST /v1/chats - create or get 1:1 chat
	chatGroup.GET("", chatHandler.ListChats)     // GET /v1/chats - list caller's chats
	chatGroup.GET("/:id", chatHandler.GetChat)   // GET /v1/chats/:id - chat detail
	chatGroup.PUT("/:id/read", chatHandler.MarkRead) // PUT /v1/chats/:id/read - mark read

	chatGroup.POST("/:id/messages", chatHandler.SendMessage) // POST /v1/chats/:id/messages
	chatGroup.GET("/:id/messages", chatHandler.GetMessages)  // GET /v1/chats/:id/messages
}
