package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"duochat/internal/infrastructure/firebase"
	"duochat/internal/infrastructure/session"
	ws "duochat/internal/infrastructure/websocket"
	"duochat/internal/usecase"
	"duochat/pkg/errors"
	"duochat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades connections and dispatches inbound frames. A
// connection starts unauthenticated; until an auth frame succeeds every
// other frame except ping is answered with an error frame and the
// connection stays open.
type WebSocketHandler struct {
	hub         *ws.Hub
	registry    session.Registry
	authClient  *firebase.FirebaseAuthClient
	chatUseCase *usecase.ChatUseCase
}

func NewWebSocketHandler(
	hub *ws.Hub,
	registry session.Registry,
	authClient *firebase.FirebaseAuthClient,
	chatUseCase *usecase.ChatUseCase,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		registry:    registry,
		authClient:  authClient,
		chatUseCase: chatUseCase,
	}
}

func (h *WebSocketHandler) HandleConnection(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("websocket: upgrade failed: %v", err)
		return err
	}

	client := ws.NewClient(conn)
	h.hub.Add(client)
	logger.Debug("websocket: conn %s opened", client.ID)

	go client.WritePump()

	// A token on the upgrade request authenticates without a first frame.
	if token := c.QueryParam("token"); token != "" {
		h.authenticate(c.Request().Context(), client, token)
	}

	go client.ReadPump(h.handleFrame, h.handleClose)
	return nil
}

// handleFrame runs on the connection's reader goroutine. In-flight work uses
// a background context so a disconnect mid-operation never cancels a
// mutation already underway.
func (h *WebSocketHandler) handleFrame(client *ws.Client, payload []byte) {
	var frame ws.Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		client.Send(ws.NewErrorFrame("INVALID_REQUEST", "malformed frame"))
		return
	}

	ctx := context.Background()

	switch frame.Type {
	case ws.FramePing:
		client.Send(ws.NewFrame(ws.FramePong, nil))

	case ws.FrameAuth:
		h.handleAuth(ctx, client, frame.Data)

	case ws.FrameSubscribe:
		if !h.requireAuth(client) {
			return
		}
		var req ws.SubscribePayload
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RoomID == "" {
			client.Send(ws.NewErrorFrame("INVALID_REQUEST", "room_id is required"))
			return
		}
		if err := h.chatUseCase.CanSubscribe(ctx, client.UserID, req.RoomID); err != nil {
			h.sendError(client, err)
			return
		}
		h.hub.Join(req.RoomID, client)

	case ws.FrameUnsubscribe:
		if !h.requireAuth(client) {
			return
		}
		var req ws.SubscribePayload
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RoomID == "" {
			client.Send(ws.NewErrorFrame("INVALID_REQUEST", "room_id is required"))
			return
		}
		h.hub.Leave(req.RoomID, client.ID)

	case ws.FrameSendMessage:
		if !h.requireAuth(client) {
			return
		}
		var req ws.SendMessagePayload
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RoomID == "" {
			client.Send(ws.NewErrorFrame("INVALID_REQUEST", "room_id is required"))
			return
		}
		if _, err := h.chatUseCase.SendMessage(ctx, client.UserID, req.RoomID, req.Content); err != nil {
			h.sendError(client, err)
		}

	case ws.FrameMarkRead:
		if !h.requireAuth(client) {
			return
		}
		var req ws.MarkReadPayload
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RoomID == "" {
			client.Send(ws.NewErrorFrame("INVALID_REQUEST", "room_id is required"))
			return
		}
		if _, err := h.chatUseCase.MarkRead(ctx, client.UserID, req.RoomID, req.MessageID); err != nil {
			h.sendError(client, err)
		}

	case ws.FrameTyping:
		if !h.requireAuth(client) {
			return
		}
		var req ws.TypingPayload
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.RoomID == "" {
			client.Send(ws.NewErrorFrame("INVALID_REQUEST", "room_id is required"))
			return
		}
		if err := h.chatUseCase.Typing(ctx, client.UserID, client.ID, req.RoomID, req.Typing); err != nil {
			h.sendError(client, err)
		}

	default:
		client.Send(ws.NewErrorFrame("INVALID_REQUEST", "unknown frame type: "+frame.Type))
	}
}

func (h *WebSocketHandler) handleAuth(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var req ws.AuthPayload
	if err := json.Unmarshal(data, &req); err != nil || req.Token == "" {
		client.Send(ws.NewErrorFrame("UNAUTHORIZED", "token is required"))
		return
	}
	h.authenticate(ctx, client, req.Token)
}

func (h *WebSocketHandler) authenticate(ctx context.Context, client *ws.Client, token string) {
	uid, err := h.authClient.VerifyToken(ctx, token)
	if err != nil {
		client.Send(ws.NewErrorFrame("UNAUTHORIZED", "invalid or expired token"))
		return
	}

	client.UserID = uid
	if err := h.registry.Register(ctx, uid, client.ID); err != nil {
		logger.Warn("websocket: register %s for user %s failed: %v", client.ID, uid, err)
	}

	client.Send(ws.NewFrame(ws.FrameAuthenticated, map[string]string{"user_id": uid}))
	logger.Info("websocket: conn %s authenticated as %s", client.ID, uid)
	h.chatUseCase.NotifyPresence(ctx, uid, true)
}

// handleClose tears down both halves of the connection's registration. The
// registry absorbs the case where a newer connection already replaced this
// one, so a late disconnect cannot clobber the fresh session.
func (h *WebSocketHandler) handleClose(client *ws.Client) {
	ctx := context.Background()

	h.hub.Remove(client.ID)
	if client.UserID != "" {
		if err := h.registry.Unregister(ctx, client.ID); err != nil {
			logger.Warn("websocket: unregister %s failed: %v", client.ID, err)
		}
		if !h.registry.IsOnline(ctx, client.UserID) {
			h.chatUseCase.NotifyPresence(ctx, client.UserID, false)
		}
	}
	logger.Debug("websocket: conn %s closed", client.ID)
}

func (h *WebSocketHandler) requireAuth(client *ws.Client) bool {
	if client.UserID == "" {
		client.Send(ws.NewErrorFrame("UNAUTHORIZED", "authenticate first"))
		return false
	}
	return true
}

func (h *WebSocketHandler) sendError(client *ws.Client, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		client.Send(ws.NewErrorFrame(appErr.Code, appErr.Message))
		return
	}
	client.Send(ws.NewErrorFrame("INTERNAL_ERROR", "operation failed"))
}
