package entity

import "time"

// User is owned by the external account subsystem; this core only reads the
// fields it needs to label rooms and correlate transport-level auth.
type User struct {
	ID        string    `json:"id" firestore:"id"`
	Email     string    `json:"email" firestore:"email"`
	Username  string    `json:"username" firestore:"username"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}
