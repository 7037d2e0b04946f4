package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// QueueRepository abstracts the matchmaking queue store.
type QueueRepository interface {
	Enqueue(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
	Depth(ctx context.Context) (int, error)
}

// QueueRepo is a sqlx implementation of QueueRepository.
type QueueRepo struct {
	db *sqlx.DB
}

// NewQueueRepo constructs a QueueRepo.
func NewQueueRepo(db *sqlx.DB) *QueueRepo {
	return &QueueRepo{db: db}
}

// Enqueue adds the user to the queue. A duplicate enqueue from the same
// user is a silent no-op; the primary key keeps one entry per user.
func (r *QueueRepo) Enqueue(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO matchmaking_queue (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

// Remove takes the user out of the queue; a no-op if absent. The single
// DELETE statement cannot observe a half-cancelled entry: a concurrent
// partner claim holds a row lock until its transaction commits, so the
// delete either wins before the claim selects the row or waits it out.
func (r *QueueRepo) Remove(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM matchmaking_queue WHERE user_id=$1`, userID)
	return err
}

// Depth returns the number of users currently waiting.
func (r *QueueRepo) Depth(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM matchmaking_queue`)
	return n, err
}
