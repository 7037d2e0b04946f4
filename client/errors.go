package client

import "errors"

var (
	// ErrMediaAcquisition means the microphone was denied or unavailable.
	// Fatal to starting a call; never retried.
	ErrMediaAcquisition = errors.New("media acquisition failed")

	// ErrNegotiationFailure means ICE/connection setup failed or the
	// connection closed unexpectedly. Treated as call termination.
	ErrNegotiationFailure = errors.New("negotiation failed")

	// ErrSignalDelivery means a relay send exhausted its retries. Handled
	// exactly like a negotiation failure so the peer is never left hanging.
	ErrSignalDelivery = errors.New("signal delivery failed")

	// ErrDuplicateFriendRequest maps the relay's duplicate conflict so the
	// UI can say "already sent".
	ErrDuplicateFriendRequest = errors.New("friend request already sent")

	// ErrFeedbackExists means feedback for this call was already submitted.
	ErrFeedbackExists = errors.New("feedback already submitted")

	// ErrInvalidTransition reports a state-machine misuse, like starting a
	// search while a call is live.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrInvalidFeedback reports a rating outside 1..5 or over-long text.
	ErrInvalidFeedback = errors.New("invalid feedback")
)
