package repository

import (
	"context"
	stderrors "errors"
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

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(roomID string) *firestore.CollectionRef {
	return r.client.Collection("rooms").Doc(roomID).Collection("messages")
}

// Append assigns the message its room sequence number inside the same
// transaction that bumps the room counter, so two concurrent sends commit
// with distinct, strictly increasing sequence numbers in store order.
func (r *firestoreMessageRepository) Append(ctx context.Context, roomID, senderID, content string) (*entity.Message, error) {
	var message *entity.Message

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
		if !room.HasParticipant(senderID) {
			return errors.NotAParticipant(senderID, roomID)
		}

		seq := room.MessageSeq + 1
		message = &entity.Message{
			ID:        uuid.New().String(),
			RoomID:    roomID,
			SenderID:  senderID,
			Content:   content,
			Seq:       seq,
			Read:      false,
			CreatedAt: time.Now(),
		}

		if err := tx.Update(roomRef, []firestore.Update{
			{Path: "messageSeq", Value: seq},
			{Path: "updatedAt", Value: message.CreatedAt},
		}); err != nil {
			return err
		}
		return tx.Create(r.messages(roomID).Doc(message.ID), message)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.RoomNotFound(roomID, err)
		}
		if errors.Is(err, "NOT_A_PARTICIPANT") || errors.Is(err, "INTERNAL_ERROR") {
			return nil, err
		}
		return nil, errors.Unavailable("Failed to append message", err)
	}
	return message, nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, roomID, messageID string) (*entity.Message, error) {
	var message entity.Message
	err := withRetry(ctx, "message.GetByID", func() error {
		doc, err := r.messages(roomID).Doc(messageID).Get(ctx)
		if err != nil {
			return err
		}
		return doc.DataTo(&message)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.MessageNotFound(messageID, err)
		}
		return nil, errors.Unavailable("Failed to get message", err)
	}
	return &message, nil
}

func (r *firestoreMessageRepository) Page(ctx context.Context, roomID string, limit int, beforeID string) ([]*entity.Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	query := r.messages(roomID).OrderBy("seq", firestore.Desc)
	if beforeID != "" {
		cursor, err := r.GetByID(ctx, roomID, beforeID)
		if err != nil {
			return nil, false, err
		}
		query = query.Where("seq", "<", cursor.Seq)
	}
	// One extra row decides has_more without a second count query.
	query = query.Limit(limit + 1)

	var messages []*entity.Message
	err := withRetry(ctx, "message.Page", func() error {
		messages = messages[:0]
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
			var message entity.Message
			if err := doc.DataTo(&message); err != nil {
				return err
			}
			messages = append(messages, &message)
		}
	})
	if err != nil {
		return nil, false, errors.Unavailable("Failed to page messages", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	return messages, hasMore, nil
}

func (r *firestoreMessageRepository) MarkAllRead(ctx context.Context, roomID, requesterID string) (int, *entity.Message, error) {
	var docs []*firestore.DocumentSnapshot
	err := withRetry(ctx, "message.MarkAllRead", func() error {
		var err error
		docs, err = r.messages(roomID).Where("read", "==", false).Documents(ctx).GetAll()
		return err
	})
	if err != nil {
		return 0, nil, errors.Unavailable("Failed to query unread messages", err)
	}

	batch := r.client.Batch()
	count := 0
	// The newest flipped message anchors the caller's marker advance; a
	// message appended after this query is not ours to acknowledge.
	var newest *entity.Message
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return 0, nil, errors.Internal("Failed to parse message data", err)
		}
		// A sender's own messages are never flipped by their own read.
		if message.SenderID == requesterID {
			continue
		}
		batch.Update(doc.Ref, []firestore.Update{{Path: "read", Value: true}})
		count++
		if newest == nil || message.Seq > newest.Seq {
			m := message
			newest = &m
		}
	}
	if count == 0 {
		return 0, nil, nil
	}

	if _, err := batch.Commit(ctx); err != nil {
		return 0, nil, errors.Unavailable("Failed to mark messages read", err)
	}
	return count, newest, nil
}

// MarkOneRead flips the message and advances the requester's last-read marker
// in a single transaction, so the marker can never point at a message whose
// read flag was not actually flipped.
func (r *firestoreMessageRepository) MarkOneRead(ctx context.Context, roomID, messageID, requesterID string) (*entity.Message, bool, error) {
	var message entity.Message
	var flipped bool

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		flipped = false
		msgRef := r.messages(roomID).Doc(messageID)
		msgSnap, err := tx.Get(msgRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.MessageNotFound(messageID, err)
			}
			return err
		}
		if err := msgSnap.DataTo(&message); err != nil {
			return errors.Internal("Failed to parse message data", err)
		}

		// A user cannot mark their own message read via this path.
		if message.SenderID == requesterID {
			return nil
		}

		roomRef := r.client.Collection("rooms").Doc(roomID)
		roomSnap, err := tx.Get(roomRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.RoomNotFound(roomID, err)
			}
			return err
		}
		var room entity.Room
		if err := roomSnap.DataTo(&room); err != nil {
			return errors.Internal("Failed to parse room data", err)
		}
		participant := room.Participant(requesterID)
		if participant == nil {
			return errors.NotAParticipant(requesterID, roomID)
		}

		if !message.Read {
			message.Read = true
			if err := tx.Update(msgRef, []firestore.Update{{Path: "read", Value: true}}); err != nil {
				return err
			}
			flipped = true
		}

		if message.Seq > participant.LastReadSeq {
			participant.LastReadMessageID = message.ID
			participant.LastReadSeq = message.Seq
			return tx.Update(roomRef, []firestore.Update{
				{Path: "participants", Value: room.Participants},
				{Path: "updatedAt", Value: time.Now()},
			})
		}
		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, false, err
		}
		return nil, false, errors.Unavailable("Failed to mark message read", err)
	}
	return &message, flipped, nil
}

func (r *firestoreMessageRepository) Latest(ctx context.Context, roomID string) (*entity.Message, error) {
	var message *entity.Message
	err := withRetry(ctx, "message.Latest", func() error {
		message = nil
		iter := r.messages(roomID).OrderBy("seq", firestore.Desc).Limit(1).Documents(ctx)
		defer iter.Stop()
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		var m entity.Message
		if err := doc.DataTo(&m); err != nil {
			return err
		}
		message = &m
		return nil
	})
	if err != nil {
		return nil, errors.Unavailable("Failed to get latest message", err)
	}
	return message, nil
}

// LatestByRoomIDs is the explicit fetch-join replacing lazy traversal: one
// bounded query per room id, no cross-entity object graph.
func (r *firestoreMessageRepository) LatestByRoomIDs(ctx context.Context, roomIDs []string) (map[string]*entity.Message, error) {
	result := make(map[string]*entity.Message, len(roomIDs))
	for _, roomID := range roomIDs {
		message, err := r.Latest(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if message != nil {
			result[roomID] = message
		}
	}
	return result, nil
}

func (r *firestoreMessageRepository) UnreadCountByRoomIDs(ctx context.Context, roomIDs []string, userID string) (map[string]int, error) {
	result := make(map[string]int, len(roomIDs))
	for _, roomID := range roomIDs {
		var docs []*firestore.DocumentSnapshot
		err := withRetry(ctx, "message.UnreadCountByRoomIDs", func() error {
			var err error
			docs, err = r.messages(roomID).Where("read", "==", false).Documents(ctx).GetAll()
			return err
		})
		if err != nil {
			return nil, errors.Unavailable("Failed to count unread messages", err)
		}
		count := 0
		for _, doc := range docs {
			var message entity.Message
			if err := doc.DataTo(&message); err != nil {
				continue
			}
			if message.SenderID != userID {
				count++
			}
		}
		result[roomID] = count
	}
	return result, nil
}
