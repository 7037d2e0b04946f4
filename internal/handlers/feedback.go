package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicematch-service/internal/models"
	"voicematch-service/internal/observability"
	"voicematch-service/internal/repositories"
	"voicematch-service/internal/telemetry"
)

// FeedbackHandler manages post-call feedback submission.
type FeedbackHandler struct {
	callRepo     repositories.CallRepository
	feedbackRepo repositories.FeedbackRepository
	emitter      *telemetry.CallEventEmitter
}

// NewFeedbackHandler builds a FeedbackHandler.
func NewFeedbackHandler(callRepo repositories.CallRepository, feedbackRepo repositories.FeedbackRepository, emitter *telemetry.CallEventEmitter) *FeedbackHandler {
	return &FeedbackHandler{
		callRepo:     callRepo,
		feedbackRepo: feedbackRepo,
		emitter:      emitter,
	}
}

// SubmitFeedback stores one rating per user per call. Only ended calls
// accept feedback, and resubmission is refused.
func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}

	var req struct {
		Rating       int    `json:"rating" binding:"required"`
		FeedbackText string `json:"feedback_text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	text := strings.TrimSpace(req.FeedbackText)
	if len(text) > models.MaxFeedbackLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback text too long"})
		return
	}
	var textPtr *string
	if text != "" {
		textPtr = &text
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
	if call.Status != models.CallStatusEnded {
		c.JSON(http.StatusConflict, gin.H{"error": "call has not ended"})
		return
	}

	fb, err := h.feedbackRepo.CreateFeedback(ctx, callID, userID, req.Rating, textPtr)
	if errors.Is(err, repositories.ErrFeedbackExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "feedback already submitted"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store feedback"})
		return
	}

	h.emitter.Emit(ctx, telemetry.EventFeedbackSubmitted, callID.String(),
		observability.RequestIDFromRequest(c.Request), map[string]any{
			"user_id": userID,
			"rating":  req.Rating,
		})

	c.JSON(http.StatusCreated, fb)
}
