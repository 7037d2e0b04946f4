package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"voicematch-service/internal/models"
)

var ErrFeedbackExists = errors.New("feedback already submitted")

// FeedbackRepository abstracts post-call feedback persistence.
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, callID uuid.UUID, userID string, rating int, text *string) (models.CallFeedback, error)
}

// FeedbackRepo is a sqlx implementation of FeedbackRepository.
type FeedbackRepo struct {
	db *sqlx.DB
}

// NewFeedbackRepo constructs a FeedbackRepo.
func NewFeedbackRepo(db *sqlx.DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

// CreateFeedback stores one immutable feedback row per user per call.
// A second submission for the same pair surfaces as ErrFeedbackExists.
func (r *FeedbackRepo) CreateFeedback(ctx context.Context, callID uuid.UUID, userID string, rating int, text *string) (models.CallFeedback, error) {
	var fb models.CallFeedback
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO call_feedback (call_id, user_id, rating, feedback_text)
         VALUES ($1, $2, $3, $4)
         RETURNING call_id, user_id, rating, feedback_text, created_at`,
		callID, userID, rating, text).StructScan(&fb)
	if isUniqueViolation(err) {
		return models.CallFeedback{}, ErrFeedbackExists
	}
	return fb, err
}

// isUniqueViolation reports whether err is a postgres unique constraint
// violation (class 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
