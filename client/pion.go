package client

import (
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultICEServers are the STUN servers used when the caller does not
// configure its own.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// PionEngine drives a real audio-only peer connection via pion/webrtc,
// capturing the microphone through pion/mediadevices with an Opus encoder.
type PionEngine struct {
	pc     *webrtc.PeerConnection
	tracks []mediadevices.Track

	mu        sync.Mutex
	audioOn   bool
	closeOnce sync.Once
	closeErr  error
}

// NewPionEngine acquires the microphone and builds the peer connection.
// A capture failure is ErrMediaAcquisition: fatal, not retried.
func NewPionEngine(iceServers []webrtc.ICEServer) (MediaEngine, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector.Populate(mediaEngine)

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: codecSelector,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	e := &PionEngine{pc: pc, audioOn: true}
	for _, track := range stream.GetTracks() {
		track.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Msg("local audio track ended")
			}
		})
		if _, err := pc.AddTrack(track); err != nil {
			for _, t := range stream.GetTracks() {
				t.Close()
			}
			_ = pc.Close()
			return nil, fmt.Errorf("add track: %w", err)
		}
		e.tracks = append(e.tracks, track)
	}

	return e, nil
}

func (e *PionEngine) CreateOffer() (webrtc.SessionDescription, error) {
	return e.pc.CreateOffer(nil)
}

func (e *PionEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	return e.pc.CreateAnswer(nil)
}

func (e *PionEngine) SetLocalDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetLocalDescription(desc)
}

func (e *PionEngine) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetRemoteDescription(desc)
}

func (e *PionEngine) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(candidate)
}

func (e *PionEngine) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (e *PionEngine) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	e.pc.OnConnectionStateChange(fn)
}

// SetAudioEnabled flips the local mute flag. pion/mediadevices exposes no
// per-track enable switch, so the flag is tracked here for the UI while
// capture keeps running.
func (e *PionEngine) SetAudioEnabled(enabled bool) {
	e.mu.Lock()
	e.audioOn = enabled
	e.mu.Unlock()
	log.Debug().Bool("enabled", enabled).Msg("local audio toggled")
}

// Close stops capture tracks and closes the connection. Idempotent.
func (e *PionEngine) Close() error {
	e.closeOnce.Do(func() {
		for _, t := range e.tracks {
			if err := t.Close(); err != nil {
				log.Warn().Err(err).Msg("track close failed")
			}
		}
		e.closeErr = e.pc.Close()
	})
	return e.closeErr
}
