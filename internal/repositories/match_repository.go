package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"voicematch-service/internal/models"
)

// ErrNoPartner means nobody else is waiting: the caller stays queued.
// Losing a claim race surfaces the same way and is not a failure.
var ErrNoPartner = errors.New("no partner available")

// MatchRepository performs the atomic dequeue-and-create-session claim.
type MatchRepository interface {
	FindPartner(ctx context.Context, userID string) (models.CallSession, error)
}

// MatchRepo is a sqlx implementation of MatchRepository.
type MatchRepo struct {
	db *sqlx.DB
}

// NewMatchRepo constructs a MatchRepo.
func NewMatchRepo(db *sqlx.DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// FindPartner claims the oldest other queued user and creates an active
// call with the caller as initiator, all in one transaction. The caller's
// own queue row is locked first: a caller whose row is already gone was
// consumed by a concurrent claim and must not pair again, it learns its
// call over the match notice instead. FOR UPDATE SKIP LOCKED on the
// partner select makes the claims race-safe beyond that: the same entry
// can never be selected by two matchers, and the loser simply sees no
// row. Both participants leave the queue atomically with session
// creation.
func (r *MatchRepo) FindPartner(ctx context.Context, userID string) (models.CallSession, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.CallSession{}, fmt.Errorf("begin match tx: %w", err)
	}
	defer tx.Rollback()

	var selfID string
	err = tx.GetContext(ctx, &selfID,
		`SELECT user_id FROM matchmaking_queue
         WHERE user_id = $1
         FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CallSession{}, ErrNoPartner
	}
	if err != nil {
		return models.CallSession{}, fmt.Errorf("lock own queue entry: %w", err)
	}

	var partnerID string
	err = tx.GetContext(ctx, &partnerID,
		`SELECT user_id FROM matchmaking_queue
         WHERE user_id <> $1
         ORDER BY enqueued_at, user_id
         LIMIT 1
         FOR UPDATE SKIP LOCKED`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CallSession{}, ErrNoPartner
	}
	if err != nil {
		return models.CallSession{}, fmt.Errorf("select partner: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM matchmaking_queue WHERE user_id IN ($1, $2)`, userID, partnerID); err != nil {
		return models.CallSession{}, fmt.Errorf("dequeue pair: %w", err)
	}

	var session models.CallSession
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO calls (id, caller_id, callee_id, status)
         VALUES ($1, $2, $3, 'active')
         RETURNING id, caller_id, callee_id, status, created_at, ended_at`,
		uuid.New(), userID, partnerID).StructScan(&session)
	if err != nil {
		return models.CallSession{}, fmt.Errorf("create call: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.CallSession{}, fmt.Errorf("commit match tx: %w", err)
	}
	return session, nil
}
