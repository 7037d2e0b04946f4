package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voicematch-service/internal/mocks"
	"voicematch-service/internal/models"
	"voicematch-service/internal/repositories"
)

func setupFriendRouter(handler *FriendHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.POST("/friends/requests", handler.SendFriendRequest)
	return r
}

func TestSendFriendRequestSuccess(t *testing.T) {
	friendRepo := new(mocks.FriendRepositoryMock)
	handler := NewFriendHandler(friendRepo)
	router := setupFriendRouter(handler, "u1")

	friendRepo.On("CreateFriendRequest", mock.Anything, "u1", "u2").
		Return(models.FriendRequest{ID: 1, SenderID: "u1", ReceiverID: "u2", Status: models.FriendRequestPending}, nil).Once()

	body := bytes.NewBufferString(`{"receiver_id":"u2"}`)
	req := httptest.NewRequest(http.MethodPost, "/friends/requests", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.FriendRequest
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, models.FriendRequestPending, resp.Status)

	friendRepo.AssertExpectations(t)
}

func TestSendFriendRequestDuplicate(t *testing.T) {
	friendRepo := new(mocks.FriendRepositoryMock)
	handler := NewFriendHandler(friendRepo)
	router := setupFriendRouter(handler, "u1")

	friendRepo.On("CreateFriendRequest", mock.Anything, "u1", "u2").
		Return(nil, repositories.ErrDuplicateFriendRequest).Once()

	body := bytes.NewBufferString(`{"receiver_id":"u2"}`)
	req := httptest.NewRequest(http.MethodPost, "/friends/requests", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "friend request already sent", resp["error"])
}

func TestSendFriendRequestToSelf(t *testing.T) {
	friendRepo := new(mocks.FriendRepositoryMock)
	handler := NewFriendHandler(friendRepo)
	router := setupFriendRouter(handler, "u1")

	body := bytes.NewBufferString(`{"receiver_id":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/friends/requests", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	friendRepo.AssertNotCalled(t, "CreateFriendRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendFriendRequestMissingReceiver(t *testing.T) {
	handler := NewFriendHandler(new(mocks.FriendRepositoryMock))
	router := setupFriendRouter(handler, "u1")

	req := httptest.NewRequest(http.MethodPost, "/friends/requests", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
