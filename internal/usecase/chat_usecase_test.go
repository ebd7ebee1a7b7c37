package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/internal/domain/entity"
	"duochat/internal/infrastructure/ratelimit"
	"duochat/internal/infrastructure/session"
	ws "duochat/internal/infrastructure/websocket"
	apperrors "duochat/pkg/errors"
	"duochat/pkg/utils"
)

type fakeRoomRepo struct {
	rooms map[string]*entity.Room
	pairs map[string]string
	next  int
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms: make(map[string]*entity.Room),
		pairs: make(map[string]string),
	}
}

func (r *fakeRoomRepo) CreateOrGetPrivate(ctx context.Context, creatorID, otherID string) (*entity.Room, bool, error) {
	key := entity.PrivatePairKey(creatorID, otherID)
	if roomID, ok := r.pairs[key]; ok {
		return r.rooms[roomID], false, nil
	}

	r.next++
	now := time.Now()
	room := &entity.Room{
		ID:             fmt.Sprintf("room-%d", r.next),
		Type:           entity.RoomTypePrivate,
		PairKey:        key,
		CreatedBy:      creatorID,
		ParticipantIDs: []string{creatorID, otherID},
		Participants: []entity.Participant{
			{UserID: creatorID, Admin: true},
			{UserID: otherID},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.rooms[room.ID] = room
	r.pairs[key] = room.ID
	return room, true, nil
}

func (r *fakeRoomRepo) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	room, ok := r.rooms[id]
	if !ok {
		return nil, apperrors.RoomNotFound(id, nil)
	}
	return room, nil
}

func (r *fakeRoomRepo) ListByUserID(ctx context.Context, userID string) ([]*entity.Room, error) {
	var out []*entity.Room
	for _, room := range r.rooms {
		if room.HasParticipant(userID) {
			out = append(out, room)
		}
	}
	return out, nil
}

func (r *fakeRoomRepo) UpdateLastRead(ctx context.Context, roomID, userID, messageID string, messageSeq int64) error {
	room, ok := r.rooms[roomID]
	if !ok {
		return apperrors.RoomNotFound(roomID, nil)
	}
	p := room.Participant(userID)
	if p == nil {
		return apperrors.NotAParticipant(userID, roomID)
	}
	if messageSeq > p.LastReadSeq {
		p.LastReadSeq = messageSeq
		p.LastReadMessageID = messageID
	}
	return nil
}

type fakeMessageRepo struct {
	rooms    *fakeRoomRepo
	messages map[string][]*entity.Message
	next     int
}

func newFakeMessageRepo(rooms *fakeRoomRepo) *fakeMessageRepo {
	return &fakeMessageRepo{
		rooms:    rooms,
		messages: make(map[string][]*entity.Message),
	}
}

func (m *fakeMessageRepo) Append(ctx context.Context, roomID, senderID, content string) (*entity.Message, error) {
	room, ok := m.rooms.rooms[roomID]
	if !ok {
		return nil, apperrors.RoomNotFound(roomID, nil)
	}
	if !room.HasParticipant(senderID) {
		return nil, apperrors.NotAParticipant(senderID, roomID)
	}

	room.MessageSeq++
	m.next++
	msg := &entity.Message{
		ID:        fmt.Sprintf("msg-%d", m.next),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		Seq:       room.MessageSeq,
		CreatedAt: time.Now(),
	}
	m.messages[roomID] = append(m.messages[roomID], msg)
	return msg, nil
}

func (m *fakeMessageRepo) GetByID(ctx context.Context, roomID, messageID string) (*entity.Message, error) {
	for _, msg := range m.messages[roomID] {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, apperrors.MessageNotFound(messageID, nil)
}

func (m *fakeMessageRepo) Page(ctx context.Context, roomID string, limit int, beforeID string) ([]*entity.Message, bool, error) {
	if limit <= 0 {
		limit = utils.DefaultMessageLimit
	}

	var cutoff int64 = 1<<62 - 1
	if beforeID != "" {
		cursor, err := m.GetByID(ctx, roomID, beforeID)
		if err != nil {
			return nil, false, err
		}
		cutoff = cursor.Seq
	}

	log := m.messages[roomID]
	var page []*entity.Message
	hasMore := false
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Seq >= cutoff {
			continue
		}
		if len(page) == limit {
			hasMore = true
			break
		}
		page = append(page, log[i])
	}
	return page, hasMore, nil
}

func (m *fakeMessageRepo) MarkAllRead(ctx context.Context, roomID, requesterID string) (int, *entity.Message, error) {
	count := 0
	var newest *entity.Message
	for _, msg := range m.messages[roomID] {
		if !msg.Read && msg.SenderID != requesterID {
			msg.Read = true
			count++
			if newest == nil || msg.Seq > newest.Seq {
				newest = msg
			}
		}
	}
	return count, newest, nil
}

func (m *fakeMessageRepo) MarkOneRead(ctx context.Context, roomID, messageID, requesterID string) (*entity.Message, bool, error) {
	msg, err := m.GetByID(ctx, roomID, messageID)
	if err != nil {
		return nil, false, err
	}
	if msg.SenderID == requesterID || msg.Read {
		return msg, false, nil
	}
	msg.Read = true
	_ = m.rooms.UpdateLastRead(ctx, roomID, requesterID, msg.ID, msg.Seq)
	return msg, true, nil
}

func (m *fakeMessageRepo) Latest(ctx context.Context, roomID string) (*entity.Message, error) {
	log := m.messages[roomID]
	if len(log) == 0 {
		return nil, nil
	}
	return log[len(log)-1], nil
}

func (m *fakeMessageRepo) LatestByRoomIDs(ctx context.Context, roomIDs []string) (map[string]*entity.Message, error) {
	out := make(map[string]*entity.Message)
	for _, roomID := range roomIDs {
		if msg, _ := m.Latest(ctx, roomID); msg != nil {
			out[roomID] = msg
		}
	}
	return out, nil
}

func (m *fakeMessageRepo) UnreadCountByRoomIDs(ctx context.Context, roomIDs []string, userID string) (map[string]int, error) {
	out := make(map[string]int)
	for _, roomID := range roomIDs {
		for _, msg := range m.messages[roomID] {
			if !msg.Read && msg.SenderID != userID {
				out[roomID]++
			}
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	users map[string]*entity.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	users := make(map[string]*entity.User)
	for _, id := range ids {
		users[id] = &entity.User{ID: id, Username: id}
	}
	return &fakeUserRepo{users: users}
}

func (u *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	user, ok := u.users[id]
	if !ok {
		return nil, apperrors.UserNotFound(id, nil)
	}
	return user, nil
}

func (u *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	out := make(map[string]*entity.User)
	for _, id := range ids {
		if user, ok := u.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

type fakeHub struct {
	roomFrames map[string][][]byte
	connFrames map[string][][]byte
	excluded   map[string][]string
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		roomFrames: make(map[string][][]byte),
		connFrames: make(map[string][][]byte),
		excluded:   make(map[string][]string),
	}
}

func (h *fakeHub) BroadcastRoom(roomID string, payload []byte, exceptConnID string) int {
	h.roomFrames[roomID] = append(h.roomFrames[roomID], payload)
	h.excluded[roomID] = append(h.excluded[roomID], exceptConnID)
	return 1
}

func (h *fakeHub) SendToConn(connID string, payload []byte) bool {
	h.connFrames[connID] = append(h.connFrames[connID], payload)
	return true
}

func frameTypes(frames [][]byte) []string {
	var out []string
	for _, raw := range frames {
		var frame ws.Frame
		_ = json.Unmarshal(raw, &frame)
		out = append(out, frame.Type)
	}
	return out
}

type fixture struct {
	uc       *ChatUseCase
	rooms    *fakeRoomRepo
	messages *fakeMessageRepo
	users    *fakeUserRepo
	hub      *fakeHub
	registry *session.MemoryRegistry
}

func newFixture(userIDs ...string) *fixture {
	rooms := newFakeRoomRepo()
	messages := newFakeMessageRepo(rooms)
	users := newFakeUserRepo(userIDs...)
	hub := newFakeHub()
	registry := session.NewMemoryRegistry()
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		"send_message": {Burst: 1000, Rate: 1000},
		"create_room":  {Burst: 1000, Rate: 1000},
	})
	return &fixture{
		uc:       NewChatUseCase(rooms, messages, users, hub, registry, limiter),
		rooms:    rooms,
		messages: messages,
		users:    users,
		hub:      hub,
		registry: registry,
	}
}

func TestCreateOrGetRoomIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")

	first, created, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)

	// Either participant resolving the pair again lands in the same room.
	second, created, err := f.uc.CreateOrGetRoom(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.rooms.rooms, 1)
}

func TestCreateOrGetRoomRejectsSelfAndUnknownRecipient(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")

	_, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "alice")
	assert.True(t, apperrors.Is(err, "INVALID_REQUEST"))

	_, _, err = f.uc.CreateOrGetRoom(ctx, "alice", "nobody")
	assert.True(t, apperrors.Is(err, "USER_NOT_FOUND"))
}

func TestCreateOrGetRoomNotifiesOnlineParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")

	require.NoError(t, f.registry.Register(ctx, "bob", "conn-bob"))

	_, created, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, created)

	assert.Equal(t, []string{"room_created", "chat_list_update"}, frameTypes(f.hub.connFrames["conn-bob"]))
	// Alice has no registered session, so nothing is pushed for her.
	assert.Empty(t, f.hub.connFrames["conn-alice"])
}

func TestSendMessageAssignsIncreasingSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	m1, err := f.uc.SendMessage(ctx, "alice", room.ID, "first")
	require.NoError(t, err)
	m2, err := f.uc.SendMessage(ctx, "bob", room.ID, "second")
	require.NoError(t, err)

	assert.Equal(t, int64(1), m1.Seq)
	assert.Equal(t, int64(2), m2.Seq)
	assert.False(t, m1.Read)
}

func TestSendMessageFansOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, f.registry.Register(ctx, "bob", "conn-bob"))

	_, err = f.uc.SendMessage(ctx, "alice", room.ID, "hello")
	require.NoError(t, err)

	assert.Contains(t, frameTypes(f.hub.roomFrames[room.ID]), "new_message")
	// Only bob has a live session, so only bob gets a list update.
	assert.Equal(t, []string{"chat_list_update"}, frameTypes(f.hub.connFrames["conn-bob"]))
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob", "carol")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, "alice", room.ID, "   ")
	assert.True(t, apperrors.Is(err, "INVALID_REQUEST"))

	_, err = f.uc.SendMessage(ctx, "carol", room.ID, "hi")
	assert.True(t, apperrors.Is(err, "NOT_A_PARTICIPANT"))

	_, err = f.uc.SendMessage(ctx, "alice", "no-such-room", "hi")
	assert.True(t, apperrors.Is(err, "ROOM_NOT_FOUND"))
}

func TestGetMessagesPaginatesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := f.uc.SendMessage(ctx, "alice", room.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	before := ""
	pages := 0
	for {
		page, hasMore, err := f.uc.GetMessages(ctx, "bob", room.ID, utils.CursorParams{Limit: 2, Before: before})
		require.NoError(t, err)
		pages++

		for i, msg := range page {
			assert.False(t, seen[msg.ID], "message %s returned twice", msg.ID)
			seen[msg.ID] = true
			if i > 0 {
				assert.Greater(t, page[i-1].Seq, msg.Seq)
			}
		}
		if !hasMore {
			break
		}
		before = page[len(page)-1].ID
	}

	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)
}

func TestGetMessagesRequiresParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob", "carol")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	_, _, err = f.uc.GetMessages(ctx, "carol", room.ID, utils.CursorParams{Limit: 10})
	assert.True(t, apperrors.Is(err, "NOT_A_PARTICIPANT"))
}

func TestMarkReadAllIsIdempotentAndAdvancesMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, "alice", room.ID, "one")
	require.NoError(t, err)
	last, err := f.uc.SendMessage(ctx, "alice", room.ID, "two")
	require.NoError(t, err)
	// Bob's own message must not count toward his unread work.
	_, err = f.uc.SendMessage(ctx, "bob", room.ID, "reply")
	require.NoError(t, err)

	count, err := f.uc.MarkRead(ctx, "bob", room.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = f.uc.MarkRead(ctx, "bob", room.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The marker lands on the newest message bob's read actually flipped,
	// not on his own later reply.
	p := f.rooms.rooms[room.ID].Participant("bob")
	require.NotNil(t, p)
	assert.Equal(t, last.Seq, p.LastReadSeq)
	assert.Equal(t, last.ID, p.LastReadMessageID)

	assert.Contains(t, frameTypes(f.hub.roomFrames[room.ID]), "read_receipt")
}

// interleavingMessageRepo appends a fresh counterpart message immediately
// after the batch flip, modeling a send landing between the flip and the
// marker advance.
type interleavingMessageRepo struct {
	*fakeMessageRepo
	senderID string
	content  string
}

func (m *interleavingMessageRepo) MarkAllRead(ctx context.Context, roomID, requesterID string) (int, *entity.Message, error) {
	count, newest, err := m.fakeMessageRepo.MarkAllRead(ctx, roomID, requesterID)
	if err == nil {
		_, _ = m.fakeMessageRepo.Append(ctx, roomID, m.senderID, m.content)
	}
	return count, newest, err
}

func TestMarkReadAllSkipsConcurrentlyAppendedMessage(t *testing.T) {
	ctx := context.Background()
	rooms := newFakeRoomRepo()
	messages := &interleavingMessageRepo{
		fakeMessageRepo: newFakeMessageRepo(rooms),
		senderID:        "alice",
		content:         "landed mid-read",
	}
	users := newFakeUserRepo("alice", "bob")
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{})
	uc := NewChatUseCase(rooms, messages, users, newFakeHub(), session.NewMemoryRegistry(), limiter)

	room, _, err := uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	flipped, err := uc.SendMessage(ctx, "alice", room.ID, "before")
	require.NoError(t, err)

	count, err := uc.MarkRead(ctx, "bob", room.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The marker stops at the flipped message; the one appended during the
	// read stays unread and unacknowledged.
	p := rooms.rooms[room.ID].Participant("bob")
	require.NotNil(t, p)
	assert.Equal(t, flipped.Seq, p.LastReadSeq)

	latest, err := messages.Latest(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "landed mid-read", latest.Content)
	assert.False(t, latest.Read)
	assert.Greater(t, latest.Seq, p.LastReadSeq)
}

func TestMarkReadSingleMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	msg, err := f.uc.SendMessage(ctx, "alice", room.ID, "hello")
	require.NoError(t, err)

	count, err := f.uc.MarkRead(ctx, "bob", room.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := f.messages.GetByID(ctx, room.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)

	// Repeating the single-message ack reports nothing flipped, matching
	// the mark-all path.
	count, err = f.uc.MarkRead(ctx, "bob", room.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Reading your own message never flips its flag.
	own, err := f.uc.SendMessage(ctx, "bob", room.ID, "mine")
	require.NoError(t, err)
	count, err = f.uc.MarkRead(ctx, "bob", room.ID, own.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMarkReadRejectsOutsiders(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob", "carol")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.uc.MarkRead(ctx, "carol", room.ID, "")
	assert.True(t, apperrors.Is(err, "NOT_A_PARTICIPANT"))
}

func TestListRoomsOrdersByActivityAndCountsUnread(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob", "carol")

	withBob, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	withCarol, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "carol")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, "bob", withBob.ID, "old")
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, "carol", withCarol.ID, "newer")
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, "carol", withCarol.ID, "newest")
	require.NoError(t, err)

	summaries, err := f.uc.ListRooms(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, withCarol.ID, summaries[0].ID)
	assert.Equal(t, 2, summaries[0].UnreadCount)
	assert.Equal(t, "carol", summaries[0].OtherUser.ID)
	assert.Equal(t, "newest", summaries[0].LastMessage.Content)

	assert.Equal(t, withBob.ID, summaries[1].ID)
	assert.Equal(t, 1, summaries[1].UnreadCount)
}

func TestTypingBroadcastsToOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture("alice", "bob", "carol")
	room, _, err := f.uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, f.uc.Typing(ctx, "alice", "conn-alice", room.ID, true))

	assert.Equal(t, []string{"typing_indicator"}, frameTypes(f.hub.roomFrames[room.ID]))
	assert.Equal(t, []string{"conn-alice"}, f.hub.excluded[room.ID])

	err = f.uc.Typing(ctx, "carol", "conn-carol", room.ID, true)
	assert.True(t, apperrors.Is(err, "NOT_A_PARTICIPANT"))
}

func TestRateLimitOnSend(t *testing.T) {
	ctx := context.Background()
	rooms := newFakeRoomRepo()
	messages := newFakeMessageRepo(rooms)
	users := newFakeUserRepo("alice", "bob")
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		"send_message": {Burst: 1, Rate: 0.001},
		"create_room":  {Burst: 10, Rate: 10},
	})
	uc := NewChatUseCase(rooms, messages, users, newFakeHub(), session.NewMemoryRegistry(), limiter)

	room, _, err := uc.CreateOrGetRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, "alice", room.ID, "one")
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "alice", room.ID, "two")
	assert.True(t, apperrors.Is(err, "TOO_MANY_REQUESTS"))
}
