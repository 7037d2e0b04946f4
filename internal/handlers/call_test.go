package handlers

import (
	"bytes"
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

func setupCallRouter(handler *CallHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.GET("/calls/:call_id", handler.GetCall)
	r.POST("/calls/:call_id/end", handler.EndCall)
	return r
}

func TestGetCallSuccess(t *testing.T) {
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo, new(mocks.SignalRepositoryMock), ws.NewHub(), nil)
	router := setupCallRouter(handler, "u1")

	callID := uuid.New()
	call := models.CallSession{ID: callID, CallerID: "u1", CalleeID: "u2", Status: models.CallStatusActive}
	callRepo.On("GetCall", mock.Anything, callID).Return(call, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/calls/"+callID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.CallSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, callID, resp.ID)
	callRepo.AssertExpectations(t)
}

func TestGetCallNotFound(t *testing.T) {
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo, new(mocks.SignalRepositoryMock), ws.NewHub(), nil)
	router := setupCallRouter(handler, "u1")

	callID := uuid.New()
	callRepo.On("GetCall", mock.Anything, callID).Return(nil, repositories.ErrCallNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/calls/"+callID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCallNonParticipant(t *testing.T) {
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo, new(mocks.SignalRepositoryMock), ws.NewHub(), nil)
	router := setupCallRouter(handler, "intruder")

	callID := uuid.New()
	call := models.CallSession{ID: callID, CallerID: "u1", CalleeID: "u2", Status: models.CallStatusActive}
	callRepo.On("GetCall", mock.Anything, callID).Return(call, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/calls/"+callID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetCallInvalidID(t *testing.T) {
	handler := NewCallHandler(new(mocks.CallRepositoryMock), new(mocks.SignalRepositoryMock), ws.NewHub(), nil)
	router := setupCallRouter(handler, "u1")

	req := httptest.NewRequest(http.MethodGet, "/calls/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndCallFirstCaller(t *testing.T) {
	callRepo := new(mocks.CallRepositoryMock)
	signalRepo := new(mocks.SignalRepositoryMock)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewCallEventEmitter(publisher, "voicematch-service", "test")
	handler := NewCallHandler(callRepo, signalRepo, ws.NewHub(), emitter)
	router := setupCallRouter(handler, "u1")

	callID := uuid.New()
	callRepo.On("IsParticipant", mock.Anything, callID, "u1").Return(true, nil).Once()
	callRepo.On("EndCall", mock.Anything, callID).Return(true, nil).Once()
	signalRepo.On("Append", mock.Anything, callID, "u1", models.SignalCallEnded, mock.Anything).
		Return(models.SignalEnvelope{ID: 9, CallID: callID, SenderID: "u1", SignalType: models.SignalCallEnded}, nil).Once()
	publisher.On("Publish", mock.Anything, "call_events."+telemetry.EventCallEnded,
		mock.MatchedBy(func(event any) bool {
			env, ok := event.(telemetry.CallEventEnvelope)
			return ok && env.CallID == callID.String() && env.Payload["ended_by"] == "u1"
		})).Return(nil).Once()

	body := bytes.NewBufferString(`{"reason":"user_disconnect"}`)
	req := httptest.NewRequest(http.MethodPost, "/calls/"+callID.String()+"/end", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "ended", resp["status"])
	require.Equal(t, false, resp["already_ended"])

	callRepo.AssertExpectations(t)
	signalRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestEndCallIdempotentRepeat(t *testing.T) {
	callRepo := new(mocks.CallRepositoryMock)
	signalRepo := new(mocks.SignalRepositoryMock)
	handler := NewCallHandler(callRepo, signalRepo, ws.NewHub(), nil)
	router := setupCallRouter(handler, "u2")

	callID := uuid.New()
	callRepo.On("IsParticipant", mock.Anything, callID, "u2").Return(true, nil).Once()
	callRepo.On("EndCall", mock.Anything, callID).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/calls/"+callID.String()+"/end", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The losing side of a simultaneous hang-up gets an acknowledged no-op
	// and no second call-ended envelope is appended.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, true, resp["already_ended"])

	signalRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	callRepo.AssertExpectations(t)
}

func TestEndCallNonParticipant(t *testing.T) {
	callRepo := new(mocks.CallRepositoryMock)
	handler := NewCallHandler(callRepo, new(mocks.SignalRepositoryMock), ws.NewHub(), nil)
	router := setupCallRouter(handler, "intruder")

	callID := uuid.New()
	callRepo.On("IsParticipant", mock.Anything, callID, "intruder").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/calls/"+callID.String()+"/end", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEndCallSignalAppendFailureStillEnds(t *testing.T) {
	callRepo := new(mocks.CallRepositoryMock)
	signalRepo := new(mocks.SignalRepositoryMock)
	handler := NewCallHandler(callRepo, signalRepo, ws.NewHub(), nil)
	router := setupCallRouter(handler, "u1")

	callID := uuid.New()
	callRepo.On("IsParticipant", mock.Anything, callID, "u1").Return(true, nil).Once()
	callRepo.On("EndCall", mock.Anything, callID).Return(true, nil).Once()
	signalRepo.On("Append", mock.Anything, callID, "u1", models.SignalCallEnded, mock.Anything).
		Return(nil, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/calls/"+callID.String()+"/end", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The status flip is the source of truth; a failed envelope append does
	// not roll it back.
	require.Equal(t, http.StatusOK, rec.Code)
	callRepo.AssertExpectations(t)
	signalRepo.AssertExpectations(t)
}
