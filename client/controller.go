package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"voicematch-service/internal/models"
)

// ControllerCallbacks route controller outcomes to the session manager.
// Exactly one of OnPeerEnded / OnFailure fires for an abnormal exit;
// OnConnected fires once when negotiation produces a usable connection.
type ControllerCallbacks struct {
	OnConnected func()
	OnPeerEnded func()
	OnFailure   func(err error)
}

// Controller translates local negotiation events into signal envelopes
// and inbound envelopes into engine actions. It processes one event at a
// time: engine callbacks are funneled into the same loop that consumes
// the relay subscription, so no two negotiation actions race.
type Controller struct {
	callID    uuid.UUID
	selfID    string
	initiator bool
	engine    MediaEngine
	api       API
	stream    SignalStream
	callbacks ControllerCallbacks

	local chan localEvent
	done  chan struct{}

	shutdownOnce sync.Once
	stopOnce     sync.Once

	// loop-local negotiation state; touched only by run().
	seen         map[int64]struct{}
	offerHandled bool
	answered     bool
}

type localEvent struct {
	candidate *webrtc.ICECandidateInit
	state     *webrtc.PeerConnectionState
}

// NewController builds a controller for one call.
func NewController(callID uuid.UUID, selfID string, initiator bool, engine MediaEngine, api API, stream SignalStream, callbacks ControllerCallbacks) *Controller {
	return &Controller{
		callID:    callID,
		selfID:    selfID,
		initiator: initiator,
		engine:    engine,
		api:       api,
		stream:    stream,
		callbacks: callbacks,
		local:     make(chan localEvent, 32),
		done:      make(chan struct{}),
		seen:      make(map[int64]struct{}),
	}
}

// Start subscribes to the relay, registers engine callbacks, emits the
// offer when this side is the initiator, and runs the event loop until
// the call terminates.
func (c *Controller) Start(ctx context.Context) error {
	inbound, cancelSub, err := c.stream.SubscribeSignals(ctx, c.callID)
	if err != nil {
		c.Shutdown()
		return fmt.Errorf("%w: %v", ErrSignalDelivery, err)
	}

	c.engine.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		c.pushLocal(localEvent{candidate: &candidate})
	})
	c.engine.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.pushLocal(localEvent{state: &state})
	})

	if c.initiator {
		if err := c.sendOffer(ctx); err != nil {
			cancelSub()
			return err
		}
	}

	// Backfill envelopes appended before the subscription was live; the
	// seen set keeps redelivery through the live channel idempotent.
	backlog, err := c.api.ListSignals(ctx, c.callID, 0)
	if err != nil {
		log.Warn().Err(err).Str("call_id", c.callID.String()).Msg("signal backfill failed")
	}

	go c.run(ctx, backlog, inbound, cancelSub)
	return nil
}

func (c *Controller) pushLocal(ev localEvent) {
	select {
	case c.local <- ev:
	case <-c.done:
	}
}

func (c *Controller) run(ctx context.Context, backlog []models.SignalEnvelope, inbound <-chan models.SignalEnvelope, cancelSub func()) {
	defer cancelSub()

	for _, env := range backlog {
		if !c.handleEnvelope(ctx, env) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.fail(fmt.Errorf("%w: %v", ErrNegotiationFailure, ctx.Err()))
			return
		case <-c.done:
			return
		case ev := <-c.local:
			if !c.handleLocal(ctx, ev) {
				return
			}
		case env, ok := <-inbound:
			if !ok {
				c.fail(fmt.Errorf("%w: signal stream closed", ErrSignalDelivery))
				return
			}
			if !c.handleEnvelope(ctx, env) {
				return
			}
		}
	}
}

// handleLocal applies one engine-originated event. Returns false when the
// loop must stop.
func (c *Controller) handleLocal(ctx context.Context, ev localEvent) bool {
	switch {
	case ev.candidate != nil:
		payload, err := json.Marshal(ev.candidate)
		if err != nil {
			log.Warn().Err(err).Msg("encode ice candidate")
			return true
		}
		// Candidate delivery is best-effort: a lost candidate degrades
		// path selection, it does not abort the call.
		if err := c.api.SendSignal(ctx, c.callID, models.SignalICECandidate, payload); err != nil {
			log.Warn().Err(err).Str("call_id", c.callID.String()).Msg("ice candidate send failed")
		}
	case ev.state != nil:
		switch *ev.state {
		case webrtc.PeerConnectionStateConnected:
			if c.callbacks.OnConnected != nil {
				c.callbacks.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.fail(fmt.Errorf("%w: connection state %s", ErrNegotiationFailure, ev.state))
			return false
		}
	}
	return true
}

// handleEnvelope applies one relay envelope. Returns false when the loop
// must stop (call-ended observed or negotiation failed).
func (c *Controller) handleEnvelope(ctx context.Context, env models.SignalEnvelope) bool {
	// Duplicate delivery of the same envelope is allowed by the relay.
	if env.ID != 0 {
		if _, dup := c.seen[env.ID]; dup {
			return true
		}
		c.seen[env.ID] = struct{}{}
	}
	// The transport also delivers the author's own envelopes.
	if env.SenderID == c.selfID {
		return true
	}

	switch env.SignalType {
	case models.SignalCallEnded:
		// Terminal: no further envelopes for this call are processed.
		if c.markStopped() {
			if c.callbacks.OnPeerEnded != nil {
				c.callbacks.OnPeerEnded()
			}
		}
		return false

	case models.SignalOffer:
		if c.initiator || c.offerHandled {
			return true
		}
		c.offerHandled = true
		if err := c.acceptOffer(ctx, env.Payload); err != nil {
			c.fail(err)
			return false
		}

	case models.SignalAnswer:
		if !c.initiator || c.answered {
			return true
		}
		c.answered = true
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &desc); err != nil {
			c.fail(fmt.Errorf("%w: malformed answer: %v", ErrNegotiationFailure, err))
			return false
		}
		if err := c.engine.SetRemoteDescription(desc); err != nil {
			c.fail(fmt.Errorf("%w: set remote answer: %v", ErrNegotiationFailure, err))
			return false
		}

	case models.SignalICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &candidate); err != nil {
			log.Warn().Err(err).Msg("malformed ice candidate")
			return true
		}
		// Applied in receipt order; an individually bad candidate is
		// skipped rather than failing the whole negotiation.
		if err := c.engine.AddICECandidate(candidate); err != nil {
			log.Warn().Err(err).Msg("add ice candidate failed")
		}
	}
	return true
}

// sendOffer creates and relays the single offer of the initiator. Retry
// exhaustion terminates the session rather than leaving the peer hanging.
func (c *Controller) sendOffer(ctx context.Context) error {
	offer, err := c.engine.CreateOffer()
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", ErrNegotiationFailure, err)
	}
	if err := c.engine.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %v", ErrNegotiationFailure, err)
	}
	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("%w: encode offer: %v", ErrNegotiationFailure, err)
	}
	if err := c.api.SendSignal(ctx, c.callID, models.SignalOffer, payload); err != nil {
		return fmt.Errorf("%w: offer: %v", ErrSignalDelivery, err)
	}
	return nil
}

// acceptOffer answers the first offer the non-initiator observes.
func (c *Controller) acceptOffer(ctx context.Context, payload json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("%w: malformed offer: %v", ErrNegotiationFailure, err)
	}
	if err := c.engine.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote offer: %v", ErrNegotiationFailure, err)
	}
	answer, err := c.engine.CreateAnswer()
	if err != nil {
		return fmt.Errorf("%w: create answer: %v", ErrNegotiationFailure, err)
	}
	if err := c.engine.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: set local answer: %v", ErrNegotiationFailure, err)
	}
	encoded, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("%w: encode answer: %v", ErrNegotiationFailure, err)
	}
	if err := c.api.SendSignal(ctx, c.callID, models.SignalAnswer, encoded); err != nil {
		return fmt.Errorf("%w: answer: %v", ErrSignalDelivery, err)
	}
	return nil
}

// markStopped closes the done channel exactly once and reports whether
// this call was the one that stopped the loop. Callbacks run outside the
// once so they may safely call Shutdown.
func (c *Controller) markStopped() bool {
	stopped := false
	c.stopOnce.Do(func() {
		close(c.done)
		stopped = true
	})
	return stopped
}

func (c *Controller) fail(err error) {
	if c.markStopped() {
		if c.callbacks.OnFailure != nil {
			c.callbacks.OnFailure(err)
		}
	}
}

// Shutdown releases the engine's microphone and connection. Idempotent;
// it runs on every exit path, error paths included.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		if err := c.engine.Close(); err != nil {
			log.Warn().Err(err).Str("call_id", c.callID.String()).Msg("engine close failed")
		}
	})
	c.markStopped()
}
