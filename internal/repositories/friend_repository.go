package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"voicematch-service/internal/models"
)

// ErrDuplicateFriendRequest is surfaced distinctly from generic failures
// so callers can report "already sent".
var ErrDuplicateFriendRequest = errors.New("friend request already sent")

// FriendRepository abstracts friend request creation. The wider friends
// surface owns the rest of the request lifecycle.
type FriendRepository interface {
	CreateFriendRequest(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error)
}

// FriendRepo is a sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

// CreateFriendRequest inserts a pending request from sender to receiver.
func (r *FriendRepo) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id, status)
         VALUES ($1, $2, 'pending')
         RETURNING id, sender_id, receiver_id, status, created_at`,
		senderID, receiverID).StructScan(&req)
	if isUniqueViolation(err) {
		return models.FriendRequest{}, ErrDuplicateFriendRequest
	}
	return req, err
}
