package client

import "github.com/pion/webrtc/v4"

// MediaEngine is the capability surface the controller drives: local audio
// is acquired when the engine is built, negotiation primitives map onto
// the underlying WebRTC implementation, and connection-state changes are
// observed through a callback. PionEngine is the production
// implementation; tests substitute a fake.
type MediaEngine interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))

	// SetAudioEnabled flips the local audio track; purely local.
	SetAudioEnabled(enabled bool)

	// Close releases the microphone and the underlying connection. Safe to
	// call more than once; every exit path from connecting/active runs it.
	Close() error
}

// EngineFactory builds a fresh engine when a session enters connecting.
// Microphone acquisition happens here; failures surface as
// ErrMediaAcquisition.
type EngineFactory func() (MediaEngine, error)
