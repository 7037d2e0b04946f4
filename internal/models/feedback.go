package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxFeedbackLength caps the free-text portion of call feedback.
const MaxFeedbackLength = 500

// CallFeedback is a post-call rating submitted once per user per call.
// Rows are immutable.
type CallFeedback struct {
	CallID       uuid.UUID `db:"call_id" json:"call_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Rating       int       `db:"rating" json:"rating"`
	FeedbackText *string   `db:"feedback_text" json:"feedback_text,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
