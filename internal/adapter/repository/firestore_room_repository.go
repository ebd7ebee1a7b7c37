package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/errors"
)

type firestoreRoomRepository struct {
	client *firestore.Client
}

func NewFirestoreRoomRepository(client *firestore.Client) repository.RoomRepository {
	return &firestoreRoomRepository{
		client: client,
	}
}

// pairClaim reserves a pair key for a room. Its document id is the pair key,
// which is what makes the unordered-pair uniqueness a storage-layer invariant:
// two concurrent creators race on tx.Create of the same document and the
// transaction machinery serializes them.
type pairClaim struct {
	RoomID string `firestore:"roomId"`
}

func (r *firestoreRoomRepository) CreateOrGetPrivate(ctx context.Context, creatorID, otherID string) (*entity.Room, bool, error) {
	pairKey := entity.PrivatePairKey(creatorID, otherID)

	var roomID string
	var created bool

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		pairRef := r.client.Collection("room_pairs").Doc(pairKey)

		snap, err := tx.Get(pairRef)
		if err == nil {
			var claim pairClaim
			if err := snap.DataTo(&claim); err != nil {
				return errors.Internal("Failed to parse room pair data", err)
			}
			roomID = claim.RoomID
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		now := time.Now()
		room := &entity.Room{
			ID:             uuid.New().String(),
			Type:           entity.RoomTypePrivate,
			PairKey:        pairKey,
			CreatedBy:      creatorID,
			ParticipantIDs: []string{creatorID, otherID},
			Participants: []entity.Participant{
				{UserID: creatorID, Admin: true},
				{UserID: otherID, Admin: false},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.Create(r.client.Collection("rooms").Doc(room.ID), room); err != nil {
			return err
		}
		if err := tx.Create(pairRef, pairClaim{RoomID: room.ID}); err != nil {
			return err
		}

		roomID = room.ID
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, "INTERNAL_ERROR") {
			return nil, false, err
		}
		return nil, false, errors.Unavailable("Failed to create or get room", err)
	}

	room, err := r.GetByID(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}

func (r *firestoreRoomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	var room entity.Room
	err := withRetry(ctx, "room.GetByID", func() error {
		doc, err := r.client.Collection("rooms").Doc(id).Get(ctx)
		if err != nil {
			return err
		}
		return doc.DataTo(&room)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.RoomNotFound(id, err)
		}
		return nil, errors.Unavailable("Failed to get room", err)
	}
	return &room, nil
}

func (r *firestoreRoomRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.Room, error) {
	query := r.client.Collection("rooms").
		Where("type", "==", entity.RoomTypePrivate).
		Where("participantIds", "array-contains", userID)

	var rooms []*entity.Room
	err := withRetry(ctx, "room.ListByUserID", func() error {
		rooms = rooms[:0]
		iter := query.Documents(ctx)
		defer iter.Stop()
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			var room entity.Room
			if err := doc.DataTo(&room); err != nil {
				return err
			}
			rooms = append(rooms, &room)
		}
	})
	if err != nil {
		return nil, errors.Unavailable("Failed to list rooms", err)
	}
	return rooms, nil
}

func (r *firestoreRoomRepository) UpdateLastRead(ctx context.Context, roomID, userID, messageID string, messageSeq int64) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		roomRef := r.client.Collection("rooms").Doc(roomID)
		snap, err := tx.Get(roomRef)
		if err != nil {
			return err
		}
		var room entity.Room
		if err := snap.DataTo(&room); err != nil {
			return errors.Internal("Failed to parse room data", err)
		}

		participant := room.Participant(userID)
		if participant == nil {
			return errors.NotAParticipant(userID, roomID)
		}

		// Newest wins: a stale marker from an out-of-order caller never
		// rewinds the stored one.
		if messageSeq <= participant.LastReadSeq {
			return nil
		}
		participant.LastReadMessageID = messageID
		participant.LastReadSeq = messageSeq

		return tx.Update(roomRef, []firestore.Update{
			{Path: "participants", Value: room.Participants},
			{Path: "updatedAt", Value: time.Now()},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.RoomNotFound(roomID, err)
		}
		if errors.Is(err, "NOT_A_PARTICIPANT") || errors.Is(err, "INTERNAL_ERROR") {
			return err
		}
		return errors.Unavailable("Failed to update last-read marker", err)
	}
	return nil
}
