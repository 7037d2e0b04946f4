package models

import "time"

// Friend request statuses. Only pending requests are created here; the
// friends surface of the wider application owns acceptance and rejection.
const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestRejected = "rejected"
)

// FriendRequest links two users after a call. The unique constraint on
// (sender_id, receiver_id) makes duplicate sends detectable.
type FriendRequest struct {
	ID         int64     `db:"id" json:"id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	ReceiverID string    `db:"receiver_id" json:"receiver_id"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
