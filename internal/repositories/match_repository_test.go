package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"voicematch-service/internal/models"
)

func setupMatchRepo(t *testing.T) (*MatchRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMatchRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func TestFindPartnerClaimsOldestWaiting(t *testing.T) {
	repo, mock := setupMatchRepo(t)
	callID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE user_id = \$1\s+FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(`WHERE user_id <> \$1\s+ORDER BY enqueued_at, user_id\s+LIMIT 1\s+FOR UPDATE SKIP LOCKED`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u2"))
	mock.ExpectExec(`DELETE FROM matchmaking_queue WHERE user_id IN \(\$1, \$2\)`).
		WithArgs("u1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`INSERT INTO calls`).
		WithArgs(sqlmock.AnyArg(), "u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "caller_id", "callee_id", "status", "created_at", "ended_at"}).
			AddRow(callID.String(), "u1", "u2", models.CallStatusActive, now, nil))
	mock.ExpectCommit()

	session, err := repo.FindPartner(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, callID, session.ID)
	require.Equal(t, "u1", session.CallerID)
	require.Equal(t, "u2", session.CalleeID)
	require.Equal(t, models.CallStatusActive, session.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A caller whose own queue row was consumed by a concurrent claim must
// not pair a second time: the transaction stops at the self-lock and no
// call row is created.
func TestFindPartnerCallerAlreadyClaimed(t *testing.T) {
	repo, mock := setupMatchRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE user_id = \$1\s+FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	_, err := repo.FindPartner(context.Background(), "u1")
	require.ErrorIs(t, err, ErrNoPartner)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPartnerNobodyElseWaiting(t *testing.T) {
	repo, mock := setupMatchRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE user_id = \$1\s+FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	_, err := repo.FindPartner(context.Background(), "u1")
	require.ErrorIs(t, err, ErrNoPartner)
	require.NoError(t, mock.ExpectationsWereMet())
}
