package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"voicematch-service/internal/models"
)

// MatchResult is the outcome of one search attempt. Matched=false is the
// "no match yet" outcome, not an error; losing a pairing race looks the
// same and resolves through the match subscription.
type MatchResult struct {
	Matched     bool
	CallID      uuid.UUID
	PartnerID   string
	PartnerName string
	Initiator   bool
}

// API is the server surface the SDK talks to. Split out so session and
// controller tests can run against an in-memory fake.
type API interface {
	StartSearch(ctx context.Context) (MatchResult, error)
	CancelSearch(ctx context.Context) error
	EndCall(ctx context.Context, callID uuid.UUID, reason string) error
	SendSignal(ctx context.Context, callID uuid.UUID, signalType string, payload json.RawMessage) error
	ListSignals(ctx context.Context, callID uuid.UUID, afterID int64) ([]models.SignalEnvelope, error)
	SubmitFeedback(ctx context.Context, callID uuid.UUID, rating int, text string) error
	SendFriendRequest(ctx context.Context, receiverID string) error
}

// HTTPAPI implements API against the voicematch service. Transient
// failures (network errors, 5xx) are retried with capped exponential
// backoff and surface only on exhaustion.
type HTTPAPI struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPAPI constructs the transport.
func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.status, e.body)
}

func transientBackoff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(policy, ctx)
}

// do runs one JSON request with retry on transport errors and 5xx. The
// response body is decoded into out when non-nil; 4xx statuses are
// returned immediately as *apiError for the caller to map.
func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out any) error {
	return backoff.Retry(func() error {
		var reqBody *bytes.Buffer
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(err)
			}
			reqBody = bytes.NewBuffer(encoded)
		} else {
			reqBody = bytes.NewBuffer(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+a.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &apiError{status: resp.StatusCode}
		}
		if resp.StatusCode >= 400 {
			var errBody struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&errBody)
			return backoff.Permanent(&apiError{status: resp.StatusCode, body: errBody.Error})
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(err)
			}
		}
		return nil
	}, transientBackoff(ctx))
}

// StartSearch joins the queue and reports an immediate match if this side
// won the pairing.
func (a *HTTPAPI) StartSearch(ctx context.Context) (MatchResult, error) {
	var resp struct {
		Status      string    `json:"status"`
		CallID      uuid.UUID `json:"call_id"`
		PartnerID   string    `json:"partner_id"`
		PartnerName string    `json:"partner_name"`
		Initiator   bool      `json:"initiator"`
	}
	if err := a.do(ctx, http.MethodPost, "/match/search", nil, &resp); err != nil {
		return MatchResult{}, err
	}
	return MatchResult{
		Matched:     resp.Status == "matched",
		CallID:      resp.CallID,
		PartnerID:   resp.PartnerID,
		PartnerName: resp.PartnerName,
		Initiator:   resp.Initiator,
	}, nil
}

// CancelSearch leaves the queue.
func (a *HTTPAPI) CancelSearch(ctx context.Context) error {
	return a.do(ctx, http.MethodDelete, "/match/search", nil, nil)
}

// EndCall persists the ended transition; idempotent server-side.
func (a *HTTPAPI) EndCall(ctx context.Context, callID uuid.UUID, reason string) error {
	body := map[string]string{"reason": reason}
	return a.do(ctx, http.MethodPost, "/calls/"+callID.String()+"/end", body, nil)
}

// SendSignal appends one envelope to the call's relay log.
func (a *HTTPAPI) SendSignal(ctx context.Context, callID uuid.UUID, signalType string, payload json.RawMessage) error {
	body := map[string]any{"signal_type": signalType, "payload": payload}
	return a.do(ctx, http.MethodPost, "/calls/"+callID.String()+"/signals", body, nil)
}

// ListSignals backfills envelopes after a cursor, in append order.
func (a *HTTPAPI) ListSignals(ctx context.Context, callID uuid.UUID, afterID int64) ([]models.SignalEnvelope, error) {
	var resp struct {
		Signals []models.SignalEnvelope `json:"signals"`
	}
	path := fmt.Sprintf("/calls/%s/signals?after=%d", callID, afterID)
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Signals, nil
}

// SubmitFeedback stores the post-call rating; duplicate submissions map
// to ErrFeedbackExists.
func (a *HTTPAPI) SubmitFeedback(ctx context.Context, callID uuid.UUID, rating int, text string) error {
	body := map[string]any{"rating": rating, "feedback_text": text}
	err := a.do(ctx, http.MethodPost, "/calls/"+callID.String()+"/feedback", body, nil)
	if isConflict(err) {
		return ErrFeedbackExists
	}
	return err
}

// SendFriendRequest creates a pending request; duplicates map to
// ErrDuplicateFriendRequest.
func (a *HTTPAPI) SendFriendRequest(ctx context.Context, receiverID string) error {
	body := map[string]string{"receiver_id": receiverID}
	err := a.do(ctx, http.MethodPost, "/friends/requests", body, nil)
	if isConflict(err) {
		return ErrDuplicateFriendRequest
	}
	return err
}

func isConflict(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.status == http.StatusConflict
}
