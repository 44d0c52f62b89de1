package core

import (
	"context"

	"github.com/dkeye/callbroker/internal/domain"
)

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// ConnectionConfig is read once, when the connection is created.
type ConnectionConfig struct {
	Session  string
	Peer     domain.PeerID
	Video    bool
	MicMuted bool
	Devices  domain.DeviceSelection
	Events   MediaEvents
}

// MediaEngine creates peer connections. It is consumed by the call core,
// never implemented by it.
type MediaEngine interface {
	CreateConnection(ctx context.Context, cfg ConnectionConfig) (ConnectionHandle, error)
}

// ConnectionHandle owns one peer connection of the media engine.
type ConnectionHandle interface {
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	// SetLocalDescription returns once the engine reports the description set.
	SetLocalDescription(ctx context.Context, typ SDPType, sdp string) error
	SetRemoteDescription(ctx context.Context, typ SDPType, sdp string) error
	AddICECandidate(c domain.IceCandidate) error
	SetMicrophoneMuted(muted bool) error
	SetVideoEnabled(enabled bool) error
	// SetHeld stops sending and playing media without renegotiation.
	SetHeld(held bool) error
	SwitchCamera(deviceID string) error
	Close() error
}

// RemoteStream describes a track announced by the peer.
type RemoteStream struct {
	Kind      string `json:"kind"`
	TrackID   string `json:"track_id"`
	StreamID  string `json:"stream_id"`
	Codec     string `json:"codec"`
	ClockRate uint32 `json:"clock_rate"`
}

// MediaEvents receives engine callbacks for one connection. Implementations
// must not block the engine.
type MediaEvents interface {
	OnIceCandidate(c domain.IceCandidate)
	OnAddStream(s RemoteStream)
	OnSignalingStateChange(state string)
	// OnMediaReady fires when local and remote media flow.
	OnMediaReady()
	OnMediaFailed(err error)
}
