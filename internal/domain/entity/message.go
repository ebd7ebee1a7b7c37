package entity

import "time"

// Message is an append-only chat message. Seq is assigned from the room's
// counter at append time: within a room it is strictly increasing and defines
// the authoritative order (creation time with insertion-order tie-break).
type Message struct {
	ID        string    `json:"id" firestore:"id"`
	RoomID    string    `json:"room_id" firestore:"roomId"`
	SenderID  string    `json:"sender_id" firestore:"senderId"`
	Content   string    `json:"content" firestore:"content"`
	Seq       int64     `json:"seq" firestore:"seq"`
	Read      bool      `json:"read" firestore:"read"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}
