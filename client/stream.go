package client

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"voicematch-service/internal/models"
)

// MatchStream delivers match notices pushed to this user.
type MatchStream interface {
	Subscribe(ctx context.Context) (<-chan models.MatchNotice, func(), error)
}

// SignalStream delivers signaling envelopes for one call in append order.
// Delivery is at-least-once and includes the subscriber's own envelopes.
type SignalStream interface {
	SubscribeSignals(ctx context.Context, callID uuid.UUID) (<-chan models.SignalEnvelope, func(), error)
}

// WSStreams implements both streams over the service's websocket
// endpoints.
type WSStreams struct {
	wsURL string
	token string
}

// NewWSStreams constructs the websocket transport. wsURL is the ws://
// base of the service.
func NewWSStreams(wsURL, token string) *WSStreams {
	return &WSStreams{wsURL: wsURL, token: token}
}

// Subscribe opens the per-user match subscription.
func (s *WSStreams) Subscribe(ctx context.Context) (<-chan models.MatchNotice, func(), error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL+"/ws/match?token="+s.token, nil)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan models.MatchNotice, 8)
	go func() {
		defer close(out)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("match stream closed")
				}
				return
			}
			var notice models.MatchNotice
			if err := json.Unmarshal(raw, &notice); err != nil {
				log.Warn().Err(err).Msg("malformed match notice")
				continue
			}
			if notice.Type != "match" {
				continue
			}
			select {
			case out <- notice:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { conn.Close() }
	return out, cancel, nil
}

// SubscribeSignals opens the per-call signal subscription.
func (s *WSStreams) SubscribeSignals(ctx context.Context, callID uuid.UUID) (<-chan models.SignalEnvelope, func(), error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		s.wsURL+"/ws/calls/"+callID.String()+"?token="+s.token, nil)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan models.SignalEnvelope, 32)
	go func() {
		defer close(out)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Str("call_id", callID.String()).Msg("signal stream closed")
				}
				return
			}
			var event models.SignalEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				log.Warn().Err(err).Msg("malformed signal event")
				continue
			}
			if event.Type != "signal" || event.Envelope == nil {
				continue
			}
			select {
			case out <- *event.Envelope:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { conn.Close() }
	return out, cancel, nil
}
