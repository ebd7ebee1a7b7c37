package repository

import (
	"context"

	"duochat/internal/domain/entity"
)

// MessageRepository owns the append-only message log of each room.
type MessageRepository interface {
	// Append persists a new message for the sender in the room, assigning a
	// fresh id, the next room sequence number and the current timestamp.
	// Fails with NOT_A_PARTICIPANT if the sender does not belong to the room.
	Append(ctx context.Context, roomID, senderID, content string) (*entity.Message, error)

	GetByID(ctx context.Context, roomID, messageID string) (*entity.Message, error)

	// Page returns up to limit messages newest-first, strictly older than the
	// before message when given. The boolean reports whether at least one
	// older message remains.
	Page(ctx context.Context, roomID string, limit int, beforeID string) ([]*entity.Message, bool, error)

	// MarkAllRead flips read=true on every unread message in the room not
	// sent by the requester. It returns the number of messages changed and
	// the newest message among them, so the caller advances the last-read
	// marker to a message this call actually flipped. Repeated calls are
	// idempotent and return 0 and nil.
	MarkAllRead(ctx context.Context, roomID, requesterID string) (int, *entity.Message, error)

	// MarkOneRead flips read=true on a single message and advances the
	// requester's last-read marker in the same storage transaction. Messages
	// sent by the requester are left untouched. The boolean reports whether
	// this call flipped the flag.
	MarkOneRead(ctx context.Context, roomID, messageID, requesterID string) (*entity.Message, bool, error)

	// Latest returns the newest message of the room, or nil when empty.
	Latest(ctx context.Context, roomID string) (*entity.Message, error)

	// LatestByRoomIDs batch-resolves the newest message per room for room
	// list summaries. Rooms without messages are absent from the map.
	LatestByRoomIDs(ctx context.Context, roomIDs []string) (map[string]*entity.Message, error)

	// UnreadCountByRoomIDs batch-counts, per room, the unread messages not
	// sent by the user.
	UnreadCountByRoomIDs(ctx context.Context, roomIDs []string, userID string) (map[string]int, error)
}
