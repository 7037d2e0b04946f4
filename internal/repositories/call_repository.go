package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"voicematch-service/internal/models"
)

var ErrCallNotFound = errors.New("call not found")

// CallRepository abstracts call session persistence.
type CallRepository interface {
	GetCall(ctx context.Context, callID uuid.UUID) (models.CallSession, error)
	IsParticipant(ctx context.Context, callID uuid.UUID, userID string) (bool, error)
	EndCall(ctx context.Context, callID uuid.UUID) (bool, error)
}

// CallRepo is a sqlx implementation of CallRepository.
type CallRepo struct {
	db *sqlx.DB
}

// NewCallRepo constructs a CallRepo.
func NewCallRepo(db *sqlx.DB) *CallRepo {
	return &CallRepo{db: db}
}

// GetCall fetches a call session by id.
func (r *CallRepo) GetCall(ctx context.Context, callID uuid.UUID) (models.CallSession, error) {
	var call models.CallSession
	err := r.db.GetContext(ctx, &call,
		`SELECT id, caller_id, callee_id, status, created_at, ended_at FROM calls WHERE id=$1`, callID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CallSession{}, ErrCallNotFound
	}
	return call, err
}

// IsParticipant checks whether the user belongs to the call.
func (r *CallRepo) IsParticipant(ctx context.Context, callID uuid.UUID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM calls WHERE id=$1 AND (caller_id=$2 OR callee_id=$2))`, callID, userID)
	return exists, err
}

// EndCall transitions the call to ended exactly once. The conditional
// UPDATE makes the transition linearizable per call id: of two concurrent
// enders only one affects a row. Returns true when this caller performed
// the transition, false when the call was already ended (a no-op).
func (r *CallRepo) EndCall(ctx context.Context, callID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status='ended', ended_at=NOW() WHERE id=$1 AND status='active'`, callID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM calls WHERE id=$1)`, callID); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrCallNotFound
		}
		return false, nil
	}
	return true, nil
}
