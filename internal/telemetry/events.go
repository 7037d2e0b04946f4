package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Event names published to the call-events exchange.
const (
	EventCallMatched       = "call.matched"
	EventCallEnded         = "call.ended"
	EventFeedbackSubmitted = "feedback.submitted"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// CallEventEmitter publishes call lifecycle events for downstream
// consumers (analytics, moderation). Emission is best-effort and never
// fails the operation that triggered it.
type CallEventEmitter struct {
	publisher   Publisher
	service     string
	environment string
}

type CallEventEnvelope struct {
	SchemaVersion int            `json:"schema_version"`
	EventName     string         `json:"event_name"`
	OccurredAt    string         `json:"occurred_at"`
	Service       string         `json:"service"`
	Environment   string         `json:"environment"`
	RequestID     string         `json:"request_id"`
	CallID        string         `json:"call_id"`
	Payload       map[string]any `json:"payload,omitempty"`
}

func NewCallEventEmitter(publisher Publisher, service, environment string) *CallEventEmitter {
	return &CallEventEmitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
	}
}

func (e *CallEventEmitter) Emit(ctx context.Context, eventName, callID, requestID string, payload map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := CallEventEnvelope{
		SchemaVersion: 1,
		EventName:     eventName,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		CallID:        callID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, "call_events."+eventName, envelope); err != nil {
		log.Error().Err(err).Str("event", eventName).Str("call_id", callID).Msg("call event publish failed")
	}
}
