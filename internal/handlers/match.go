package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"voicematch-service/internal/identity"
	"voicematch-service/internal/models"
	"voicematch-service/internal/observability"
	"voicematch-service/internal/repositories"
	"voicematch-service/internal/telemetry"
	"voicematch-service/internal/ws"
)

// MatchHandler manages the matchmaking endpoints.
type MatchHandler struct {
	queueRepo repositories.QueueRepository
	matchRepo repositories.MatchRepository
	idClient  identity.Client
	hub       *ws.Hub
	emitter   *telemetry.CallEventEmitter
}

// NewMatchHandler builds a MatchHandler.
func NewMatchHandler(queueRepo repositories.QueueRepository, matchRepo repositories.MatchRepository, idClient identity.Client, hub *ws.Hub, emitter *telemetry.CallEventEmitter) *MatchHandler {
	return &MatchHandler{
		queueRepo: queueRepo,
		matchRepo: matchRepo,
		idClient:  idClient,
		hub:       hub,
		emitter:   emitter,
	}
}

// storageBackoff is the bounded retry policy for transient storage errors.
// Capped so a persistent outage surfaces instead of livelocking.
func storageBackoff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 3 * time.Second
	return backoff.WithContext(policy, ctx)
}

// StartSearch enqueues the caller and attempts to pair it with the oldest
// waiting user. When a partner is found both sides converge on the same
// session: the caller gets it in the response as initiator, the partner
// over its match subscription as non-initiator. No partner is not an
// error; the caller stays queued until someone else's search picks it.
func (h *MatchHandler) StartSearch(c *gin.Context) {
	userID := c.GetString("userID")
	ctx := c.Request.Context()

	err := backoff.Retry(func() error {
		return h.queueRepo.Enqueue(ctx, userID)
	}, storageBackoff(ctx))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join queue"})
		return
	}

	session, err := backoff.RetryWithData(func() (models.CallSession, error) {
		session, err := h.matchRepo.FindPartner(ctx, userID)
		if errors.Is(err, repositories.ErrNoPartner) {
			return models.CallSession{}, backoff.Permanent(err)
		}
		return session, err
	}, storageBackoff(ctx))
	if errors.Is(err, repositories.ErrNoPartner) {
		h.refreshQueueDepth(ctx)
		c.JSON(http.StatusAccepted, gin.H{"status": "searching"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "matchmaking failed"})
		return
	}

	observability.IncMatches()
	h.refreshQueueDepth(ctx)

	callerName := h.displayName(ctx, session.CallerID)
	calleeName := h.displayName(ctx, session.CalleeID)

	h.hub.NotifyMatch(session.CalleeID, models.MatchNotice{
		Type:        "match",
		CallID:      session.ID,
		PartnerID:   session.CallerID,
		PartnerName: callerName,
		Initiator:   false,
	})

	h.emitter.Emit(ctx, telemetry.EventCallMatched, session.ID.String(),
		observability.RequestIDFromRequest(c.Request), map[string]any{
			"caller_id": session.CallerID,
			"callee_id": session.CalleeID,
		})

	c.JSON(http.StatusOK, gin.H{
		"status":       "matched",
		"call_id":      session.ID,
		"partner_id":   session.CalleeID,
		"partner_name": calleeName,
		"initiator":    true,
	})
}

// CancelSearch removes the caller from the queue; a no-op if absent.
func (h *MatchHandler) CancelSearch(c *gin.Context) {
	userID := c.GetString("userID")
	ctx := c.Request.Context()

	err := backoff.Retry(func() error {
		return h.queueRepo.Remove(ctx, userID)
	}, storageBackoff(ctx))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave queue"})
		return
	}

	h.refreshQueueDepth(ctx)
	c.Status(http.StatusNoContent)
}

// displayName resolves a profile name best-effort; matching never fails
// on profile lookups.
func (h *MatchHandler) displayName(ctx context.Context, userID string) string {
	if h.idClient == nil {
		return ""
	}
	name, err := h.idClient.DisplayName(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("display name lookup failed")
		return ""
	}
	return name
}

func (h *MatchHandler) refreshQueueDepth(ctx context.Context) {
	if depth, err := h.queueRepo.Depth(ctx); err == nil {
		observability.SetQueueDepth(depth)
	}
}
