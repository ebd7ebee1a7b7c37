package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/internal/infrastructure/ratelimit"
	"duochat/internal/infrastructure/session"
	ws "duochat/internal/infrastructure/websocket"
	"duochat/pkg/errors"
	"duochat/pkg/logger"
	"duochat/pkg/utils"
)

const maxMessageLength = 4000

// Broadcaster is the slice of the websocket hub the chat flow needs: room
// fan-out and targeted delivery to one connection.
type Broadcaster interface {
	BroadcastRoom(roomID string, payload []byte, exceptConnID string) int
	SendToConn(connID string, payload []byte) bool
}

// ChatUseCase routes chat operations between storage and live delivery.
// Every mutation persists first; pushes to live connections are best-effort
// and never fail the operation.
type ChatUseCase struct {
	roomRepo    repository.RoomRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	hub         Broadcaster
	registry    session.Registry
	limiter     *ratelimit.RateLimiter
}

func NewChatUseCase(
	roomRepo repository.RoomRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	hub Broadcaster,
	registry session.Registry,
	limiter *ratelimit.RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		hub:         hub,
		registry:    registry,
		limiter:     limiter,
	}
}

// RoomSummary is the room list item: the room plus what the client renders
// next to it.
type RoomSummary struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	OtherUser   *entity.User    `json:"other_user,omitempty"`
	LastMessage *entity.Message `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type roomEvent struct {
	RoomID string `json:"room_id"`
}

type readReceiptEvent struct {
	RoomID    string `json:"room_id"`
	ReaderID  string `json:"reader_id"`
	MessageID string `json:"message_id,omitempty"`
	Count     int    `json:"count"`
}

type typingEvent struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

type presenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// CreateOrGetRoom resolves the 1:1 room for (creatorID, recipientID),
// creating it when the pair has none. When a room is created both
// participants' live connections are told about it.
func (uc *ChatUseCase) CreateOrGetRoom(ctx context.Context, creatorID, recipientID string) (*RoomSummary, bool, error) {
	if recipientID == "" || recipientID == creatorID {
		return nil, false, errors.InvalidRequest("recipient must be another user", nil)
	}
	if !uc.limiter.Allow(creatorID, "create_room") {
		return nil, false, errors.TooManyRequests("room creation rate exceeded")
	}

	if _, err := uc.userRepo.GetByID(ctx, recipientID); err != nil {
		return nil, false, err
	}

	room, created, err := uc.roomRepo.CreateOrGetPrivate(ctx, creatorID, recipientID)
	if err != nil {
		return nil, false, err
	}

	if created {
		logger.Info("chat: room %s created for %s and %s", room.ID, creatorID, recipientID)
		uc.pushToUser(ctx, creatorID, ws.NewFrame(ws.FrameRoomCreated, roomEvent{RoomID: room.ID}))
		uc.pushToUser(ctx, recipientID, ws.NewFrame(ws.FrameRoomCreated, roomEvent{RoomID: room.ID}))
		uc.pushToUser(ctx, creatorID, ws.NewFrame(ws.FrameChatListUpdate, roomEvent{RoomID: room.ID}))
		uc.pushToUser(ctx, recipientID, ws.NewFrame(ws.FrameChatListUpdate, roomEvent{RoomID: room.ID}))
	}

	summary, err := uc.summarize(ctx, room, creatorID)
	if err != nil {
		return nil, false, err
	}
	return summary, created, nil
}

// ListRooms returns the caller's rooms ordered by most recent activity.
func (uc *ChatUseCase) ListRooms(ctx context.Context, userID string) ([]*RoomSummary, error) {
	rooms, err := uc.roomRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []*RoomSummary{}, nil
	}

	roomIDs := make([]string, 0, len(rooms))
	otherIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		roomIDs = append(roomIDs, room.ID)
		if other := room.OtherParticipantID(userID); other != "" {
			otherIDs = append(otherIDs, other)
		}
	}

	users, err := uc.userRepo.GetByIDs(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	latest, err := uc.messageRepo.LatestByRoomIDs(ctx, roomIDs)
	if err != nil {
		return nil, err
	}
	unread, err := uc.messageRepo.UnreadCountByRoomIDs(ctx, roomIDs, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, &RoomSummary{
			ID:          room.ID,
			Type:        room.Type,
			OtherUser:   users[room.OtherParticipantID(userID)],
			LastMessage: latest[room.ID],
			UnreadCount: unread[room.ID],
			CreatedAt:   room.CreatedAt,
			UpdatedAt:   room.UpdatedAt,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return lastActivity(summaries[i]).After(lastActivity(summaries[j]))
	})
	return summaries, nil
}

func lastActivity(s *RoomSummary) time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.UpdatedAt
}

// GetRoom returns one room summary for a participant.
func (uc *ChatUseCase) GetRoom(ctx context.Context, userID, roomID string) (*RoomSummary, error) {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, errors.NotAParticipant(userID, roomID)
	}
	return uc.summarize(ctx, room, userID)
}

// GetMessages pages the room's log newest-first for a participant.
func (uc *ChatUseCase) GetMessages(ctx context.Context, userID, roomID string, params utils.CursorParams) ([]*entity.Message, bool, error) {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	if !room.HasParticipant(userID) {
		return nil, false, errors.NotAParticipant(userID, roomID)
	}
	return uc.messageRepo.Page(ctx, roomID, params.Limit, params.Before)
}

// SendMessage appends the message and fans it out: the room topic gets
// new_message, and each participant with a registered session additionally
// gets chat_list_update on its private connection.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID, roomID, content string) (*entity.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.InvalidRequest("message content is empty", nil)
	}
	if len(content) > maxMessageLength {
		return nil, errors.InvalidRequest("message content too long", nil)
	}
	if !uc.limiter.Allow(senderID, "send_message") {
		return nil, errors.TooManyRequests("message rate exceeded")
	}

	msg, err := uc.messageRepo.Append(ctx, roomID, senderID, content)
	if err != nil {
		return nil, err
	}

	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		// The message is durable; delivery degrades to pull.
		logger.Error("chat: room %s fetch after append failed: %v", roomID, err)
		return msg, nil
	}

	frame := ws.NewFrame(ws.FrameNewMessage, msg)
	uc.hub.BroadcastRoom(roomID, frame, "")
	for _, participantID := range room.ParticipantIDs {
		if uc.registry.IsOnline(ctx, participantID) {
			uc.pushToUser(ctx, participantID, ws.NewFrame(ws.FrameChatListUpdate, roomEvent{RoomID: roomID}))
		}
	}
	return msg, nil
}

// MarkRead marks messages in the room as read for userID. With a messageID
// it flips that one message; without, it flips every unread message not sent
// by the user and advances the last-read marker to the newest message.
// Subscribers of the room topic get a read_receipt either way.
func (uc *ChatUseCase) MarkRead(ctx context.Context, userID, roomID, messageID string) (int, error) {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !room.HasParticipant(userID) {
		return 0, errors.NotAParticipant(userID, roomID)
	}

	var count int
	if messageID != "" {
		_, flipped, err := uc.messageRepo.MarkOneRead(ctx, roomID, messageID, userID)
		if err != nil {
			return 0, err
		}
		if flipped {
			count = 1
		}
	} else {
		// The marker advances to the newest message this call flipped, so a
		// message appended concurrently stays unread and unacknowledged.
		flipped, newest, err := uc.messageRepo.MarkAllRead(ctx, roomID, userID)
		if err != nil {
			return 0, err
		}
		count = flipped
		if newest != nil {
			if err := uc.roomRepo.UpdateLastRead(ctx, roomID, userID, newest.ID, newest.Seq); err != nil {
				return 0, err
			}
		}
	}

	uc.hub.BroadcastRoom(roomID, ws.NewFrame(ws.FrameReadReceipt, readReceiptEvent{
		RoomID:    roomID,
		ReaderID:  userID,
		MessageID: messageID,
		Count:     count,
	}), "")
	return count, nil
}

// Typing relays a typing indicator to the other subscribers of the room.
func (uc *ChatUseCase) Typing(ctx context.Context, userID, connID, roomID string, typing bool) error {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return errors.NotAParticipant(userID, roomID)
	}
	uc.hub.BroadcastRoom(roomID, ws.NewFrame(ws.FrameTypingEvent, typingEvent{
		RoomID: roomID,
		UserID: userID,
		Typing: typing,
	}), connID)
	return nil
}

// CanSubscribe gates room-topic subscriptions to participants.
func (uc *ChatUseCase) CanSubscribe(ctx context.Context, userID, roomID string) error {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(userID) {
		return errors.NotAParticipant(userID, roomID)
	}
	return nil
}

// NotifyPresence broadcasts the user's online state to every room the user
// belongs to. Failures only cost the notification.
func (uc *ChatUseCase) NotifyPresence(ctx context.Context, userID string, online bool) {
	rooms, err := uc.roomRepo.ListByUserID(ctx, userID)
	if err != nil {
		logger.Warn("chat: presence fan-out for %s skipped: %v", userID, err)
		return
	}
	frame := ws.NewFrame(ws.FrameUserPresence, presenceEvent{UserID: userID, Online: online})
	for _, room := range rooms {
		uc.hub.BroadcastRoom(room.ID, frame, "")
	}
}

func (uc *ChatUseCase) summarize(ctx context.Context, room *entity.Room, userID string) (*RoomSummary, error) {
	summary := &RoomSummary{
		ID:        room.ID,
		Type:      room.Type,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}

	if otherID := room.OtherParticipantID(userID); otherID != "" {
		other, err := uc.userRepo.GetByID(ctx, otherID)
		if err != nil && !errors.Is(err, "USER_NOT_FOUND") {
			return nil, err
		}
		summary.OtherUser = other
	}

	latest, err := uc.messageRepo.Latest(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	summary.LastMessage = latest

	unread, err := uc.messageRepo.UnreadCountByRoomIDs(ctx, []string{room.ID}, userID)
	if err != nil {
		return nil, err
	}
	summary.UnreadCount = unread[room.ID]
	return summary, nil
}

// pushToUser delivers a frame to the user's registered connection, if any.
// A stale registration is tolerated; the next reconnect overwrites it.
func (uc *ChatUseCase) pushToUser(ctx context.Context, userID string, payload []byte) {
	connID, ok := uc.registry.Lookup(ctx, userID)
	if !ok {
		return
	}
	if !uc.hub.SendToConn(connID, payload) {
		logger.Debug("chat: push to user %s via conn %s not delivered", userID, connID)
	}
}
