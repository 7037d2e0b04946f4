package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voicematch-service/internal/models"
)

// Status is the session lifecycle position. Transitions follow a fixed
// cycle: idle -> searching -> connecting -> active -> post-call -> idle,
// with searching -> idle on cancel and connecting/active -> post-call on
// any termination.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSearching  Status = "searching"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusPostCall   Status = "post-call"
)

const reasonUserDisconnect = "user_disconnect"

// defaultConnectTimeout bounds the connecting stage. A partner that was
// claimed but never signals (cancelled at the wrong moment, crashed
// before the offer) must not strand the session in connecting.
const defaultConnectTimeout = 30 * time.Second

// Session drives one user's matchmaking and call lifecycle. All exported
// methods are safe for concurrent use; state observers run outside the
// session lock.
type Session struct {
	selfID        string
	api           API
	matchStream   MatchStream
	signalStream  SignalStream
	engineFactory EngineFactory

	onStatus func(Status)

	mu          sync.Mutex
	status      Status
	callID      uuid.UUID
	partnerID   string
	partnerName string
	initiator   bool
	muted       bool
	lastErr     error
	controller  *Controller
	cancelMatch func()
	endOnce     *sync.Once

	connectTimeout time.Duration
	connectTimer   *time.Timer
}

// NewSession builds an idle session for the given user.
func NewSession(selfID string, api API, matchStream MatchStream, signalStream SignalStream, factory EngineFactory) *Session {
	return &Session{
		selfID:        selfID,
		api:           api,
		matchStream:   matchStream,
		signalStream:  signalStream,
		engineFactory: factory,
		status:        StatusIdle,

		connectTimeout: defaultConnectTimeout,
	}
}

// OnStateChange registers a status observer. Register before StartSearch;
// the observer fires after each transition commits.
func (s *Session) OnStateChange(fn func(Status)) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// Status returns the current lifecycle position.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// PartnerName returns the matched partner's display name, empty outside
// a call.
func (s *Session) PartnerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partnerName
}

// LastError reports why the previous call terminated, nil for a normal
// hang-up.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// StartSearch enters the queue. A partner may be assigned synchronously
// by the enqueue response or asynchronously by a match notice; both paths
// converge on the connecting state.
func (s *Session) StartSearch(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusIdle {
		cur := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: start search from %s", ErrInvalidTransition, cur)
	}
	s.status = StatusSearching
	s.lastErr = nil
	s.mu.Unlock()
	s.notify(StatusSearching)

	// Subscribe before enqueueing so a notice raced against the enqueue
	// response cannot be missed.
	notices, cancelMatch, err := s.matchStream.Subscribe(ctx)
	if err != nil {
		s.backToIdle()
		return fmt.Errorf("%w: match stream: %v", ErrSignalDelivery, err)
	}
	s.mu.Lock()
	s.cancelMatch = cancelMatch
	s.mu.Unlock()

	result, err := s.api.StartSearch(ctx)
	if err != nil {
		cancelMatch()
		s.backToIdle()
		return err
	}

	if result.Matched {
		cancelMatch()
		s.beginConnecting(ctx, models.MatchNotice{
			CallID:      result.CallID,
			PartnerID:   result.PartnerID,
			PartnerName: result.PartnerName,
			Initiator:   result.Initiator,
		})
		return nil
	}

	go s.awaitMatch(ctx, notices, cancelMatch)
	return nil
}

func (s *Session) awaitMatch(ctx context.Context, notices <-chan models.MatchNotice, cancelMatch func()) {
	defer cancelMatch()
	select {
	case <-ctx.Done():
		return
	case notice, ok := <-notices:
		if !ok {
			return
		}
		s.mu.Lock()
		if s.status != StatusSearching {
			// Cancel won the race; the server-side claim already failed
			// or this user was never paired.
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.beginConnecting(ctx, notice)
	}
}

// CancelSearch leaves the queue. Only valid while searching; a session
// that already matched must end the call instead.
func (s *Session) CancelSearch(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusSearching {
		cur := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: cancel search from %s", ErrInvalidTransition, cur)
	}
	s.status = StatusIdle
	cancelMatch := s.cancelMatch
	s.cancelMatch = nil
	s.mu.Unlock()

	if cancelMatch != nil {
		cancelMatch()
	}
	if err := s.api.CancelSearch(ctx); err != nil {
		log.Warn().Err(err).Msg("cancel search request failed")
	}
	s.notify(StatusIdle)
	return nil
}

// beginConnecting acquires media and starts negotiation for a freshly
// assigned call.
func (s *Session) beginConnecting(ctx context.Context, notice models.MatchNotice) {
	s.mu.Lock()
	s.status = StatusConnecting
	s.callID = notice.CallID
	s.partnerID = notice.PartnerID
	s.partnerName = notice.PartnerName
	s.initiator = notice.Initiator
	s.muted = false
	s.endOnce = &sync.Once{}
	s.cancelMatch = nil
	s.mu.Unlock()
	s.notify(StatusConnecting)

	engine, err := s.engineFactory()
	if err != nil {
		// Microphone denial still ends the call for both sides; the
		// partner must not wait on a peer that can never produce audio.
		s.terminate(ctx, reasonUserDisconnect, fmt.Errorf("%w: %v", ErrMediaAcquisition, err), true)
		return
	}

	ctrl := NewController(notice.CallID, s.selfID, notice.Initiator, engine, s.api, s.signalStream, ControllerCallbacks{
		OnConnected: s.markActive,
		OnPeerEnded: func() { s.terminate(ctx, "", nil, false) },
		OnFailure:   func(err error) { s.terminate(ctx, reasonUserDisconnect, err, true) },
	})

	s.mu.Lock()
	s.controller = ctrl
	s.mu.Unlock()

	if err := ctrl.Start(ctx); err != nil {
		s.terminate(ctx, reasonUserDisconnect, err, true)
		return
	}

	timer := time.AfterFunc(s.connectTimeout, func() {
		s.mu.Lock()
		stuck := s.status == StatusConnecting && s.callID == notice.CallID
		s.mu.Unlock()
		if stuck {
			s.terminate(ctx, reasonUserDisconnect,
				fmt.Errorf("%w: no connection within %s", ErrNegotiationFailure, s.connectTimeout), true)
		}
	})
	s.mu.Lock()
	s.connectTimer = timer
	s.mu.Unlock()
}

func (s *Session) markActive() {
	s.mu.Lock()
	if s.status != StatusConnecting {
		s.mu.Unlock()
		return
	}
	s.status = StatusActive
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	s.mu.Unlock()
	s.notify(StatusActive)
}

// EndCall hangs up the current call. Valid while connecting or active.
func (s *Session) EndCall(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusConnecting && s.status != StatusActive {
		cur := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: end call from %s", ErrInvalidTransition, cur)
	}
	s.mu.Unlock()
	s.terminate(ctx, reasonUserDisconnect, nil, true)
	return nil
}

// terminate ends the call exactly once: the server learns about the end
// before any local state advances, then media is released and the
// session lands in post-call.
func (s *Session) terminate(ctx context.Context, reason string, cause error, tellServer bool) {
	s.mu.Lock()
	once := s.endOnce
	ctrl := s.controller
	callID := s.callID
	s.mu.Unlock()
	if once == nil {
		return
	}

	once.Do(func() {
		if tellServer {
			if err := s.api.EndCall(ctx, callID, reason); err != nil {
				// Retries are exhausted inside the API layer; the server
				// sweeper reconciles a call we could not close.
				log.Warn().Err(err).Str("call_id", callID.String()).Msg("end call request failed")
			}
		}
		if ctrl != nil {
			ctrl.Shutdown()
		}

		s.mu.Lock()
		s.status = StatusPostCall
		s.lastErr = cause
		s.controller = nil
		if s.connectTimer != nil {
			s.connectTimer.Stop()
			s.connectTimer = nil
		}
		s.mu.Unlock()
		s.notify(StatusPostCall)
	})
}

// ToggleMute flips the local mute flag. Valid while connecting or active.
func (s *Session) ToggleMute() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		return false, fmt.Errorf("%w: mute outside a call", ErrInvalidTransition)
	}
	s.muted = !s.muted
	s.controller.engine.SetAudioEnabled(!s.muted)
	return s.muted, nil
}

// SubmitFeedback records a rating for the finished call and returns the
// session to idle. Validation mirrors the server: rating 1..5, comment
// at most MaxFeedbackLength characters after trimming.
func (s *Session) SubmitFeedback(ctx context.Context, rating int, text string) error {
	s.mu.Lock()
	if s.status != StatusPostCall {
		cur := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: feedback from %s", ErrInvalidTransition, cur)
	}
	callID := s.callID
	s.mu.Unlock()

	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating %d", ErrInvalidFeedback, rating)
	}
	text = strings.TrimSpace(text)
	if len(text) > models.MaxFeedbackLength {
		return fmt.Errorf("%w: comment too long", ErrInvalidFeedback)
	}

	if err := s.api.SubmitFeedback(ctx, callID, rating, text); err != nil {
		return err
	}
	s.backToIdle()
	return nil
}

// SendFriendRequest asks to befriend the current partner. Allowed during
// the call and on the post-call screen.
func (s *Session) SendFriendRequest(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusActive && s.status != StatusPostCall {
		cur := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: friend request from %s", ErrInvalidTransition, cur)
	}
	partnerID := s.partnerID
	s.mu.Unlock()

	return s.api.SendFriendRequest(ctx, partnerID)
}

// Dismiss leaves the post-call screen without feedback.
func (s *Session) Dismiss() error {
	s.mu.Lock()
	if s.status != StatusPostCall {
		cur := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: dismiss from %s", ErrInvalidTransition, cur)
	}
	s.mu.Unlock()
	s.backToIdle()
	return nil
}

func (s *Session) backToIdle() {
	s.mu.Lock()
	s.status = StatusIdle
	s.callID = uuid.Nil
	s.partnerID = ""
	s.partnerName = ""
	s.initiator = false
	s.muted = false
	s.endOnce = nil
	s.mu.Unlock()
	s.notify(StatusIdle)
}

func (s *Session) notify(st Status) {
	s.mu.Lock()
	fn := s.onStatus
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
