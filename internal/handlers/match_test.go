package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voicematch-service/internal/mocks"
	"voicematch-service/internal/models"
	"voicematch-service/internal/repositories"
	"voicematch-service/internal/telemetry"
	"voicematch-service/internal/ws"
)

func setupMatchRouter(handler *MatchHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.POST("/match/search", handler.StartSearch)
	r.DELETE("/match/search", handler.CancelSearch)
	return r
}

func TestStartSearchNoPartner(t *testing.T) {
	queueRepo := new(mocks.QueueRepositoryMock)
	matchRepo := new(mocks.MatchRepositoryMock)
	handler := NewMatchHandler(queueRepo, matchRepo, nil, ws.NewHub(), nil)
	router := setupMatchRouter(handler, "u1")

	queueRepo.On("Enqueue", mock.Anything, "u1").Return(nil).Once()
	matchRepo.On("FindPartner", mock.Anything, "u1").Return(nil, repositories.ErrNoPartner).Once()
	queueRepo.On("Depth", mock.Anything).Return(1, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/match/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "searching", resp["status"])

	queueRepo.AssertExpectations(t)
	matchRepo.AssertExpectations(t)
}

func TestStartSearchMatched(t *testing.T) {
	queueRepo := new(mocks.QueueRepositoryMock)
	matchRepo := new(mocks.MatchRepositoryMock)
	idClient := new(mocks.IdentityClientMock)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewCallEventEmitter(publisher, "voicematch-service", "test")
	handler := NewMatchHandler(queueRepo, matchRepo, idClient, ws.NewHub(), emitter)
	router := setupMatchRouter(handler, "u2")

	callID := uuid.New()
	session := models.CallSession{ID: callID, CallerID: "u2", CalleeID: "u1", Status: models.CallStatusActive}

	queueRepo.On("Enqueue", mock.Anything, "u2").Return(nil).Once()
	matchRepo.On("FindPartner", mock.Anything, "u2").Return(session, nil).Once()
	queueRepo.On("Depth", mock.Anything).Return(0, nil).Once()
	idClient.On("DisplayName", mock.Anything, "u2").Return("Nora", nil).Once()
	idClient.On("DisplayName", mock.Anything, "u1").Return("Milan", nil).Once()
	publisher.On("Publish", mock.Anything, "call_events."+telemetry.EventCallMatched,
		mock.MatchedBy(func(event any) bool {
			env, ok := event.(telemetry.CallEventEnvelope)
			return ok && env.CallID == callID.String() && env.Payload["caller_id"] == "u2"
		})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/match/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "matched", resp["status"])
	require.Equal(t, callID.String(), resp["call_id"])
	require.Equal(t, "u1", resp["partner_id"])
	require.Equal(t, "Milan", resp["partner_name"])
	require.Equal(t, true, resp["initiator"])

	queueRepo.AssertExpectations(t)
	matchRepo.AssertExpectations(t)
	idClient.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestStartSearchMatchedProfileLookupFails(t *testing.T) {
	queueRepo := new(mocks.QueueRepositoryMock)
	matchRepo := new(mocks.MatchRepositoryMock)
	idClient := new(mocks.IdentityClientMock)
	handler := NewMatchHandler(queueRepo, matchRepo, idClient, ws.NewHub(), nil)
	router := setupMatchRouter(handler, "u2")

	session := models.CallSession{ID: uuid.New(), CallerID: "u2", CalleeID: "u1", Status: models.CallStatusActive}

	queueRepo.On("Enqueue", mock.Anything, "u2").Return(nil).Once()
	matchRepo.On("FindPartner", mock.Anything, "u2").Return(session, nil).Once()
	queueRepo.On("Depth", mock.Anything).Return(0, nil).Once()
	idClient.On("DisplayName", mock.Anything, mock.Anything).Return("", assert.AnError).Twice()

	req := httptest.NewRequest(http.MethodPost, "/match/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Profile lookups are best-effort; the match still succeeds.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "matched", resp["status"])
	require.Equal(t, "", resp["partner_name"])

	idClient.AssertExpectations(t)
}

func TestStartSearchEnqueueError(t *testing.T) {
	queueRepo := new(mocks.QueueRepositoryMock)
	handler := NewMatchHandler(queueRepo, new(mocks.MatchRepositoryMock), nil, ws.NewHub(), nil)
	router := setupMatchRouter(handler, "u1")

	queueRepo.On("Enqueue", mock.Anything, "u1").Return(assert.AnError)

	req := httptest.NewRequest(http.MethodPost, "/match/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartSearchRetriesTransientFindPartner(t *testing.T) {
	queueRepo := new(mocks.QueueRepositoryMock)
	matchRepo := new(mocks.MatchRepositoryMock)
	handler := NewMatchHandler(queueRepo, matchRepo, nil, ws.NewHub(), nil)
	router := setupMatchRouter(handler, "u1")

	queueRepo.On("Enqueue", mock.Anything, "u1").Return(nil).Once()
	matchRepo.On("FindPartner", mock.Anything, "u1").Return(nil, assert.AnError).Once()
	matchRepo.On("FindPartner", mock.Anything, "u1").Return(nil, repositories.ErrNoPartner).Once()
	queueRepo.On("Depth", mock.Anything).Return(1, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/match/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	matchRepo.AssertExpectations(t)
}

func TestCancelSearch(t *testing.T) {
	queueRepo := new(mocks.QueueRepositoryMock)
	handler := NewMatchHandler(queueRepo, new(mocks.MatchRepositoryMock), nil, ws.NewHub(), nil)
	router := setupMatchRouter(handler, "u1")

	queueRepo.On("Remove", mock.Anything, "u1").Return(nil).Once()
	queueRepo.On("Depth", mock.Anything).Return(0, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/match/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	queueRepo.AssertExpectations(t)
}
