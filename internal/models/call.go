package models

import (
	"time"

	"github.com/google/uuid"
)

// Call lifecycle statuses. The calls row is the single source of truth for
// whether a call is still live.
const (
	CallStatusActive = "active"
	CallStatusEnded  = "ended"
)

// CallSession is the record of one pairing between two users. The caller is
// the initiator, the side that creates the WebRTC offer.
type CallSession struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	CallerID  string     `db:"caller_id" json:"caller_id"`
	CalleeID  string     `db:"callee_id" json:"callee_id"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// PartnerOf returns the other participant's id, or "" when userID is not a
// participant of the call.
func (c CallSession) PartnerOf(userID string) string {
	switch userID {
	case c.CallerID:
		return c.CalleeID
	case c.CalleeID:
		return c.CallerID
	default:
		return ""
	}
}

// HasParticipant reports whether userID takes part in the call.
func (c CallSession) HasParticipant(userID string) bool {
	return userID == c.CallerID || userID == c.CalleeID
}

// MatchNotice is pushed over the per-user websocket to the side that was
// picked out of the queue by another user's search. Both the picking and
// the picked side converge on the same call id and partner id; only the
// initiator flag differs.
type MatchNotice struct {
	Type        string    `json:"type"`
	CallID      uuid.UUID `json:"call_id"`
	PartnerID   string    `json:"partner_id"`
	PartnerName string    `json:"partner_name,omitempty"`
	Initiator   bool      `json:"initiator"`
}
