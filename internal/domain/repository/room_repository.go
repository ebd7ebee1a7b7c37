package repository

import (
	"context"

	"duochat/internal/domain/entity"
)

// RoomRepository owns room creation, lookup and the per-participant read
// markers. CreateOrGetPrivate must be safe under concurrent calls for the
// same unordered pair: the pair-uniqueness invariant is enforced at the
// storage layer, not by in-process locking.
type RoomRepository interface {
	// CreateOrGetPrivate returns the existing 1:1 room for the pair or
	// persists a new one. The second return value reports whether a room
	// was created by this call.
	CreateOrGetPrivate(ctx context.Context, creatorID, otherID string) (*entity.Room, bool, error)

	GetByID(ctx context.Context, id string) (*entity.Room, error)

	// ListByUserID returns all private rooms the user participates in, in
	// no guaranteed order; ordering is the consumer's concern.
	ListByUserID(ctx context.Context, userID string) ([]*entity.Room, error)

	// UpdateLastRead moves the participant's last-read marker to the given
	// message. Newest wins: a marker older than the stored one (by message
	// sequence) leaves the stored marker untouched.
	UpdateLastRead(ctx context.Context, roomID, userID, messageID string, messageSeq int64) error
}
