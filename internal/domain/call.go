package domain

import (
	"time"

	"github.com/google/uuid"
)

type CallType int

const (
	CallTypeAudio CallType = iota
	CallTypeAudioVideo
)

func (t CallType) String() string {
	if t == CallTypeAudioVideo {
		return "audio+video"
	}
	return "audio"
}

func (t CallType) HasVideo() bool { return t == CallTypeAudioVideo }

func (t CallType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// CallSession identifies one call attempt. It is owned by the state machine
// and only ever leaves it as a copy.
type CallSession struct {
	ID        string    `json:"id"`
	Peer      PeerID    `json:"peer"`
	Type      CallType  `json:"type"`
	Direction Direction `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
	Phase     CallState `json:"phase"`
}

func NewCallSession(peer PeerID, typ CallType, dir Direction, now time.Time) *CallSession {
	return &CallSession{
		ID:        uuid.NewString(),
		Peer:      peer,
		Type:      typ,
		Direction: dir,
		CreatedAt: now,
		Phase:     CallStateIdle,
	}
}

// CallStatus is a read-only snapshot for UI polling.
type CallStatus struct {
	State        CallState       `json:"state"`
	Session      *CallSession    `json:"session,omitempty"`
	MicMuted     bool            `json:"mic_muted"`
	VideoEnabled bool            `json:"video_enabled"`
	Devices      DeviceSelection `json:"devices"`
}
