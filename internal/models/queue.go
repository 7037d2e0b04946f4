package models

import "time"

// QueueEntry is one user waiting to be matched. A user holds at most one
// entry at a time; the primary key on user_id enforces that.
type QueueEntry struct {
	UserID     string    `db:"user_id" json:"user_id"`
	EnqueuedAt time.Time `db:"enqueued_at" json:"enqueued_at"`
}
