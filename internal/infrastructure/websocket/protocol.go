package websocket

import (
	"encoding/json"
	"time"
)

// Frame is the envelope for every message crossing the socket in either
// direction.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client to server frame types.
const (
	FrameAuth        = "auth"
	FramePing        = "ping"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSendMessage = "send_message"
	FrameMarkRead    = "mark_read"
	FrameTyping      = "typing"
)

// Server to client frame types.
const (
	FrameAuthenticated  = "authenticated"
	FramePong           = "pong"
	FrameNewMessage     = "new_message"
	FrameReadReceipt    = "read_receipt"
	FrameRoomCreated    = "room_created"
	FrameChatListUpdate = "chat_list_update"
	FrameTypingEvent    = "typing_indicator"
	FrameUserPresence   = "user_presence"
	FrameError          = "error"
)

type AuthPayload struct {
	Token string `json:"token"`
}

type SubscribePayload struct {
	RoomID string `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

type MarkReadPayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id,omitempty"`
}

type TypingPayload struct {
	RoomID string `json:"room_id"`
	Typing bool   `json:"typing"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewFrame marshals data into a ready-to-send envelope. A payload that fails
// to marshal is a programming error; the frame goes out with empty data so
// the caller never has to branch on it.
func NewFrame(frameType string, data interface{}) []byte {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	payload, _ := json.Marshal(Frame{
		Type:      frameType,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
	return payload
}

func NewErrorFrame(code, message string) []byte {
	return NewFrame(FrameError, ErrorPayload{Code: code, Message: message})
}
