package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"voicematch-service/internal/models"
)

// fakeBackend is an in-memory stand-in for the server: an append-only
// signal log fanned out to subscribers, one call's lifecycle, and
// recorded feedback and friend requests.
type fakeBackend struct {
	mu        sync.Mutex
	nextID    int64
	envelopes []models.SignalEnvelope
	subs      []chan models.SignalEnvelope

	matchResult MatchResult
	startErr    error
	cancelled   bool

	ended     bool
	endReason string

	feedback []fakeFeedback
	friends  []string
}

type fakeFeedback struct {
	userID string
	rating int
	text   string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func (b *fakeBackend) append(callID uuid.UUID, senderID, signalType string, payload json.RawMessage) models.SignalEnvelope {
	b.mu.Lock()
	b.nextID++
	env := models.SignalEnvelope{
		ID:         b.nextID,
		CallID:     callID,
		SenderID:   senderID,
		SignalType: signalType,
		Payload:    payload,
	}
	b.envelopes = append(b.envelopes, env)
	subs := make([]chan models.SignalEnvelope, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, ch := range subs {
		ch <- env
	}
	return env
}

func (b *fakeBackend) endedReason() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended, b.endReason
}

func (b *fakeBackend) recordedFeedback() []fakeFeedback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fakeFeedback(nil), b.feedback...)
}

func (b *fakeBackend) friendRequests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.friends...)
}

// userAPI is one user's view of the fake backend. It implements both the
// API and SignalStream surfaces the controller needs.
type userAPI struct {
	backend *fakeBackend
	selfID  string
}

func (a *userAPI) StartSearch(ctx context.Context) (MatchResult, error) {
	a.backend.mu.Lock()
	defer a.backend.mu.Unlock()
	return a.backend.matchResult, a.backend.startErr
}

func (a *userAPI) CancelSearch(ctx context.Context) error {
	a.backend.mu.Lock()
	a.backend.cancelled = true
	a.backend.mu.Unlock()
	return nil
}

func (a *userAPI) EndCall(ctx context.Context, callID uuid.UUID, reason string) error {
	a.backend.mu.Lock()
	endedNow := !a.backend.ended
	if endedNow {
		a.backend.ended = true
		a.backend.endReason = reason
	}
	a.backend.mu.Unlock()

	if endedNow {
		payload, _ := json.Marshal(map[string]string{"reason": reason})
		a.backend.append(callID, a.selfID, models.SignalCallEnded, payload)
	}
	return nil
}

func (a *userAPI) SendSignal(ctx context.Context, callID uuid.UUID, signalType string, payload json.RawMessage) error {
	a.backend.append(callID, a.selfID, signalType, payload)
	return nil
}

func (a *userAPI) ListSignals(ctx context.Context, callID uuid.UUID, afterID int64) ([]models.SignalEnvelope, error) {
	a.backend.mu.Lock()
	defer a.backend.mu.Unlock()
	var out []models.SignalEnvelope
	for _, env := range a.backend.envelopes {
		if env.ID > afterID {
			out = append(out, env)
		}
	}
	return out, nil
}

func (a *userAPI) SubmitFeedback(ctx context.Context, callID uuid.UUID, rating int, text string) error {
	a.backend.mu.Lock()
	defer a.backend.mu.Unlock()
	for _, fb := range a.backend.feedback {
		if fb.userID == a.selfID {
			return ErrFeedbackExists
		}
	}
	a.backend.feedback = append(a.backend.feedback, fakeFeedback{userID: a.selfID, rating: rating, text: text})
	return nil
}

func (a *userAPI) SendFriendRequest(ctx context.Context, receiverID string) error {
	a.backend.mu.Lock()
	defer a.backend.mu.Unlock()
	for _, existing := range a.backend.friends {
		if existing == a.selfID+"->"+receiverID {
			return ErrDuplicateFriendRequest
		}
	}
	a.backend.friends = append(a.backend.friends, a.selfID+"->"+receiverID)
	return nil
}

func (a *userAPI) SubscribeSignals(ctx context.Context, callID uuid.UUID) (<-chan models.SignalEnvelope, func(), error) {
	ch := make(chan models.SignalEnvelope, 64)
	a.backend.mu.Lock()
	a.backend.subs = append(a.backend.subs, ch)
	a.backend.mu.Unlock()
	return ch, func() {}, nil
}

// fakeMatchStream hands out a channel the test pushes notices into.
type fakeMatchStream struct {
	ch chan models.MatchNotice
}

func newFakeMatchStream() *fakeMatchStream {
	return &fakeMatchStream{ch: make(chan models.MatchNotice, 1)}
}

func (s *fakeMatchStream) Subscribe(ctx context.Context) (<-chan models.MatchNotice, func(), error) {
	return s.ch, func() {}, nil
}

// fakeEngine records negotiation calls without touching real media.
type fakeEngine struct {
	mu         sync.Mutex
	locals     []webrtc.SessionDescription
	remotes    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	onICE      func(webrtc.ICECandidateInit)
	onState    func(webrtc.PeerConnectionState)
	audioOn    bool
	closed     bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{audioOn: true}
}

func (e *fakeEngine) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (e *fakeEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (e *fakeEngine) SetLocalDescription(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locals = append(e.locals, desc)
	return nil
}

func (e *fakeEngine) SetRemoteDescription(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remotes = append(e.remotes, desc)
	return nil
}

func (e *fakeEngine) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = append(e.candidates, candidate)
	return nil
}

func (e *fakeEngine) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onICE = fn
}

func (e *fakeEngine) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = fn
}

func (e *fakeEngine) SetAudioEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audioOn = enabled
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) emitCandidate(candidate webrtc.ICECandidateInit) {
	e.mu.Lock()
	fn := e.onICE
	e.mu.Unlock()
	if fn != nil {
		fn(candidate)
	}
}

func (e *fakeEngine) changeState(state webrtc.PeerConnectionState) {
	e.mu.Lock()
	fn := e.onState
	e.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (e *fakeEngine) remoteDescs() []webrtc.SessionDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), e.remotes...)
}

func (e *fakeEngine) receivedCandidates() []webrtc.ICECandidateInit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), e.candidates...)
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeEngine) audioEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioOn
}
