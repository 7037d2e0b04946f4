package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"voicematch-service/internal/models"
)

type QueueRepositoryMock struct {
	mock.Mock
}

func (m *QueueRepositoryMock) Enqueue(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *QueueRepositoryMock) Remove(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *QueueRepositoryMock) Depth(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MatchRepositoryMock struct {
	mock.Mock
}

func (m *MatchRepositoryMock) FindPartner(ctx context.Context, userID string) (models.CallSession, error) {
	args := m.Called(ctx, userID)
	var call models.CallSession
	if val := args.Get(0); val != nil {
		call = val.(models.CallSession)
	}
	return call, args.Error(1)
}

type CallRepositoryMock struct {
	mock.Mock
}

func (m *CallRepositoryMock) GetCall(ctx context.Context, callID uuid.UUID) (models.CallSession, error) {
	args := m.Called(ctx, callID)
	var call models.CallSession
	if val := args.Get(0); val != nil {
		call = val.(models.CallSession)
	}
	return call, args.Error(1)
}

func (m *CallRepositoryMock) IsParticipant(ctx context.Context, callID uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, callID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *CallRepositoryMock) EndCall(ctx context.Context, callID uuid.UUID) (bool, error) {
	args := m.Called(ctx, callID)
	return args.Bool(0), args.Error(1)
}

type SignalRepositoryMock struct {
	mock.Mock
}

func (m *SignalRepositoryMock) Append(ctx context.Context, callID uuid.UUID, senderID, signalType string, payload json.RawMessage) (models.SignalEnvelope, error) {
	args := m.Called(ctx, callID, senderID, signalType, payload)
	var env models.SignalEnvelope
	if val := args.Get(0); val != nil {
		env = val.(models.SignalEnvelope)
	}
	return env, args.Error(1)
}

func (m *SignalRepositoryMock) ListAfter(ctx context.Context, callID uuid.UUID, afterID int64) ([]models.SignalEnvelope, error) {
	args := m.Called(ctx, callID, afterID)
	var list []models.SignalEnvelope
	if val := args.Get(0); val != nil {
		list = val.([]models.SignalEnvelope)
	}
	return list, args.Error(1)
}

func (m *SignalRepositoryMock) PurgeEnded(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

type FeedbackRepositoryMock struct {
	mock.Mock
}

func (m *FeedbackRepositoryMock) CreateFeedback(ctx context.Context, callID uuid.UUID, userID string, rating int, text *string) (models.CallFeedback, error) {
	args := m.Called(ctx, callID, userID, rating, text)
	var fb models.CallFeedback
	if val := args.Get(0); val != nil {
		fb = val.(models.CallFeedback)
	}
	return fb, args.Error(1)
}

type FriendRepositoryMock struct {
	mock.Mock
}

func (m *FriendRepositoryMock) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

type IdentityClientMock struct {
	mock.Mock
}

func (m *IdentityClientMock) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *IdentityClientMock) DisplayName(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}
