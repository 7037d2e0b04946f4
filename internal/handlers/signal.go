package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicematch-service/internal/models"
	"voicematch-service/internal/observability"
	"voicematch-service/internal/repositories"
	"voicematch-service/internal/ws"
)

// SignalHandler manages the signaling relay endpoints.
type SignalHandler struct {
	callRepo   repositories.CallRepository
	signalRepo repositories.SignalRepository
	hub        *ws.Hub
}

// NewSignalHandler builds a SignalHandler.
func NewSignalHandler(callRepo repositories.CallRepository, signalRepo repositories.SignalRepository, hub *ws.Hub) *SignalHandler {
	return &SignalHandler{
		callRepo:   callRepo,
		signalRepo: signalRepo,
		hub:        hub,
	}
}

// PostSignal appends an envelope to the call's signaling log and pushes it
// to all subscribers, the author included. The relay does not deduplicate
// or filter; receivers are idempotent and suppress their own echo.
func (h *SignalHandler) PostSignal(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	var req struct {
		SignalType string          `json:"signal_type" binding:"required"`
		Payload    json.RawMessage `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidSignalType(req.SignalType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal type"})
		return
	}

	userID := c.GetString("userID")
	ctx := c.Request.Context()

	call, err := h.callRepo.GetCall(ctx, callID)
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
	// call-ended may still land after the status flipped; anything else
	// appended to an ended call is refused so late negotiation noise
	// cannot reach a peer that already tore down.
	if call.Status == models.CallStatusEnded && req.SignalType != models.SignalCallEnded {
		c.JSON(http.StatusConflict, gin.H{"error": "call already ended"})
		return
	}

	env, err := h.signalRepo.Append(ctx, callID, userID, req.SignalType, req.Payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store signal"})
		return
	}

	h.hub.BroadcastSignal(callID, env)
	observability.IncSignalsRelayed(req.SignalType)

	c.JSON(http.StatusCreated, env)
}

// ListSignals returns envelopes after a given id in append order, for
// subscribers backfilling after a reconnect.
func (h *SignalHandler) ListSignals(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	afterID := int64(0)
	if after := c.Query("after"); after != "" {
		afterID, err = strconv.ParseInt(after, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
			return
		}
	}

	userID := c.GetString("userID")
	member, err := h.callRepo.IsParticipant(c.Request.Context(), callID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify participation"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a call participant"})
		return
	}

	envs, err := h.signalRepo.ListAfter(c.Request.Context(), callID, afterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": envs})
}
