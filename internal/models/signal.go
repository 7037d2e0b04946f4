package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Signal types carried by the relay. A call-ended envelope is terminal for
// its call id: receivers stop processing further envelopes once they see it.
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
	SignalCallEnded    = "call-ended"
)

// ValidSignalType reports whether t is one of the four relay signal types.
func ValidSignalType(t string) bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalICECandidate, SignalCallEnded:
		return true
	}
	return false
}

// SignalEnvelope is one append-only signaling message scoped to a call.
// Envelopes are never mutated and are ordered by id within a call. The
// transport delivers to every subscriber of the call, including the author,
// so receivers must discard envelopes whose SenderID matches their own id.
type SignalEnvelope struct {
	ID         int64           `db:"id" json:"id"`
	CallID     uuid.UUID       `db:"call_id" json:"call_id"`
	SenderID   string          `db:"sender_id" json:"sender_id"`
	SignalType string          `db:"signal_type" json:"signal_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// SignalEvent wraps an envelope for websocket delivery.
type SignalEvent struct {
	Type     string          `json:"type"`
	Envelope *SignalEnvelope `json:"envelope,omitempty"`
}
