package entity

import (
	"sort"
	"time"
)

const RoomTypePrivate = "private"

// Room is a durable 1:1 conversation container. For the private type it holds
// exactly two participants and is unique per unordered participant pair.
type Room struct {
	ID             string        `json:"id" firestore:"id"`
	Type           string        `json:"type" firestore:"type"`
	PairKey        string        `json:"-" firestore:"pairKey"`
	CreatedBy      string        `json:"created_by" firestore:"createdBy"`
	ParticipantIDs []string      `json:"participant_ids" firestore:"participantIds"`
	Participants   []Participant `json:"participants" firestore:"participants"`
	// MessageSeq is the per-room counter behind message ordering; it only
	// moves forward and is incremented transactionally on append.
	MessageSeq int64     `json:"-" firestore:"messageSeq"`
	CreatedAt  time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt  time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Participant is a user's membership record in a room, carrying the last-read
// marker. The marker only moves forward (newest wins by message sequence).
type Participant struct {
	UserID            string `json:"user_id" firestore:"userId"`
	Admin             bool   `json:"admin" firestore:"admin"`
	LastReadMessageID string `json:"last_read_message_id,omitempty" firestore:"lastReadMessageId,omitempty"`
	LastReadSeq       int64  `json:"-" firestore:"lastReadSeq"`
}

// PrivatePairKey derives the storage-level uniqueness key for a 1:1 room from
// the unordered participant pair.
func PrivatePairKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return RoomTypePrivate + ":" + ids[0] + ":" + ids[1]
}

// HasParticipant reports whether the user belongs to the room.
func (r *Room) HasParticipant(userID string) bool {
	for _, id := range r.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Participant returns the membership record for the user, or nil.
func (r *Room) Participant(userID string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i]
		}
	}
	return nil
}

// OtherParticipantID returns the counterpart of userID in a private room.
func (r *Room) OtherParticipantID(userID string) string {
	for _, id := range r.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}
