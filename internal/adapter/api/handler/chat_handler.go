package handler

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/usecase"
	"duochat/pkg/response"
	"duochat/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createChatRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type markReadRequest struct {
	MessageID string `json:"message_id"`
}

// CreateChat resolves or creates the caller's 1:1 room with the recipient.
// Returns 201 when this call created the room, 200 when it already existed.
func (h *ChatHandler) CreateChat(c echo.Context) error {
	uid := c.Get("uid").(string)

	var req createChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	room, created, err := h.chatUseCase.CreateOrGetRoom(c.Request().Context(), uid, req.RecipientID)
	if err != nil {
		return response.Error(c, err)
	}
	if created {
		return response.Created(c, room)
	}
	return response.Success(c, room)
}

func (h *ChatHandler) ListChats(c echo.Context) error {
	uid := c.Get("uid").(string)

	rooms, err := h.chatUseCase.ListRooms(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, rooms)
}

func (h *ChatHandler) GetChat(c echo.Context) error {
	uid := c.Get("uid").(string)
	roomID := c.Param("id")

	room, err := h.chatUseCase.GetRoom(c.Request().Context(), uid, roomID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, room)
}

// GetMessages pages the room's log newest-first; ?before= takes a message id
// and ?limit= caps the page size.
func (h *ChatHandler) GetMessages(c echo.Context) error {
	uid := c.Get("uid").(string)
	roomID := c.Param("id")

	params, err := utils.GetCursorParams(c)
	if err != nil {
		return response.Error(c, err)
	}

	messages, hasMore, err := h.chatUseCase.GetMessages(c.Request().Context(), uid, roomID, params)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Page(c, messages, hasMore)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	uid := c.Get("uid").(string)
	roomID := c.Param("id")

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	msg, err := h.chatUseCase.SendMessage(c.Request().Context(), uid, roomID, req.Content)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}

// MarkRead marks messages as read; an empty body (or empty message_id) marks
// the whole room.
func (h *ChatHandler) MarkRead(c echo.Context) error {
	uid := c.Get("uid").(string)
	roomID := c.Param("id")

	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	count, err := h.chatUseCase.MarkRead(c.Request().Context(), uid, roomID, req.MessageID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"room_id":      roomID,
		"message_id":   req.MessageID,
		"marked_count": count,
	})
}
