package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voicematch-service/internal/models"
	"voicematch-service/internal/observability"
	"voicematch-service/internal/repositories"
	"voicematch-service/internal/telemetry"
	"voicematch-service/internal/ws"
)

// CallHandler manages call session endpoints.
type CallHandler struct {
	callRepo   repositories.CallRepository
	signalRepo repositories.SignalRepository
	hub        *ws.Hub
	emitter    *telemetry.CallEventEmitter
}

// NewCallHandler builds a CallHandler.
func NewCallHandler(callRepo repositories.CallRepository, signalRepo repositories.SignalRepository, hub *ws.Hub, emitter *telemetry.CallEventEmitter) *CallHandler {
	return &CallHandler{
		callRepo:   callRepo,
		signalRepo: signalRepo,
		hub:        hub,
		emitter:    emitter,
	}
}

// GetCall returns the session record; participants only.
func (h *CallHandler) GetCall(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	userID := c.GetString("userID")
	call, err := h.callRepo.GetCall(c.Request.Context(), callID)
	if errors.Is(err, repositories.ErrCallNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load call"})
		return
	}
	if !call.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a call participant"})
		return
	}

	c.JSON(http.StatusOK, call)
}

// EndCall transitions the call to ended. Idempotent: the first caller
// performs the transition and a call-ended envelope is relayed to the
// peer exactly once; repeat calls are acknowledged no-ops.
func (h *CallHandler) EndCall(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	userID := c.GetString("userID")
	ctx := c.Request.Context()

	member, err := h.callRepo.IsParticipant(ctx, callID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify participation"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a call participant"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "user_disconnect"
	}

	endedNow, err := h.callRepo.EndCall(ctx, callID)
	if errors.Is(err, repositories.ErrCallNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end call"})
		return
	}

	if !endedNow {
		c.JSON(http.StatusOK, gin.H{"status": models.CallStatusEnded, "already_ended": true})
		return
	}

	payload, _ := json.Marshal(map[string]string{"reason": req.Reason})
	env, err := h.signalRepo.Append(ctx, callID, userID, models.SignalCallEnded, payload)
	if err != nil {
		// Status is already persisted; the peer still learns about the end
		// through the session record on its next transition.
		log.Error().Err(err).Str("call_id", callID.String()).Msg("call-ended signal append failed")
	} else {
		h.hub.BroadcastSignal(callID, env)
		observability.IncSignalsRelayed(models.SignalCallEnded)
	}

	observability.IncCallsEnded(req.Reason)
	h.emitter.Emit(ctx, telemetry.EventCallEnded, callID.String(),
		observability.RequestIDFromRequest(c.Request), map[string]any{
			"ended_by": userID,
			"reason":   req.Reason,
		})

	c.JSON(http.StatusOK, gin.H{"status": models.CallStatusEnded, "already_ended": false})
}
