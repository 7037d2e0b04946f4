package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"voicematch-service/internal/models"
)

// SignalRepository abstracts the append-only signaling log.
type SignalRepository interface {
	Append(ctx context.Context, callID uuid.UUID, senderID, signalType string, payload json.RawMessage) (models.SignalEnvelope, error)
	ListAfter(ctx context.Context, callID uuid.UUID, afterID int64) ([]models.SignalEnvelope, error)
	PurgeEnded(ctx context.Context, retention time.Duration) (int64, error)
}

// SignalRepo is a sqlx implementation of SignalRepository.
type SignalRepo struct {
	db *sqlx.DB
}

// NewSignalRepo constructs a SignalRepo.
func NewSignalRepo(db *sqlx.DB) *SignalRepo {
	return &SignalRepo{db: db}
}

// Append stores one envelope. Envelopes are never updated or resent by
// the relay; ordering within a call follows the serial id.
func (r *SignalRepo) Append(ctx context.Context, callID uuid.UUID, senderID, signalType string, payload json.RawMessage) (models.SignalEnvelope, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	var env models.SignalEnvelope
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO call_signals (call_id, sender_id, signal_type, payload)
         VALUES ($1, $2, $3, $4)
         RETURNING id, call_id, sender_id, signal_type, payload, created_at`,
		callID, senderID, signalType, []byte(payload)).StructScan(&env)
	return env, err
}

// ListAfter returns envelopes for a call with id greater than afterID, in
// append order. Used by reconnecting subscribers to backfill.
func (r *SignalRepo) ListAfter(ctx context.Context, callID uuid.UUID, afterID int64) ([]models.SignalEnvelope, error) {
	var envs []models.SignalEnvelope
	err := r.db.SelectContext(ctx, &envs,
		`SELECT id, call_id, sender_id, signal_type, payload, created_at
         FROM call_signals
         WHERE call_id=$1 AND id > $2
         ORDER BY id ASC`, callID, afterID)
	return envs, err
}

// PurgeEnded deletes signals belonging to calls that ended more than
// retention ago. Signals of live calls are always kept.
func (r *SignalRepo) PurgeEnded(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM call_signals
         WHERE call_id IN (
             SELECT id FROM calls WHERE status='ended' AND ended_at < NOW() - make_interval(secs => $1)
         )`, retention.Seconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
