package domain

import "fmt"

// CallState is the phase of the single call an endpoint can hold.
type CallState int

const (
	CallStateIdle CallState = iota
	// CallStateLocalRinging: incoming offer pending local answer.
	CallStateLocalRinging
	// CallStateRemoteRinging: outgoing offer pending peer answer.
	CallStateRemoteRinging
	CallStateEstablishingIncoming
	CallStateEstablishingOutgoing
	CallStateActiveCall
	CallStateHeld
	CallStateHangingUp
)

func (s CallState) String() string {
	switch s {
	case CallStateIdle:
		return "Idle"
	case CallStateLocalRinging:
		return "LocalRinging"
	case CallStateRemoteRinging:
		return "RemoteRinging"
	case CallStateEstablishingIncoming:
		return "EstablishingIncoming"
	case CallStateEstablishingOutgoing:
		return "EstablishingOutgoing"
	case CallStateActiveCall:
		return "ActiveCall"
	case CallStateHeld:
		return "Held"
	case CallStateHangingUp:
		return "HangingUp"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var validTransitions = map[CallState][]CallState{
	CallStateIdle:                 {CallStateLocalRinging, CallStateRemoteRinging},
	CallStateLocalRinging:         {CallStateEstablishingIncoming, CallStateHangingUp},
	CallStateRemoteRinging:        {CallStateEstablishingOutgoing, CallStateHangingUp, CallStateIdle},
	CallStateEstablishingIncoming: {CallStateActiveCall, CallStateHangingUp},
	CallStateEstablishingOutgoing: {CallStateActiveCall, CallStateHangingUp},
	CallStateActiveCall:           {CallStateHeld, CallStateHangingUp},
	CallStateHeld:                 {CallStateActiveCall, CallStateHangingUp},
	CallStateHangingUp:            {CallStateIdle},
}

func (s CallState) CanTransitionTo(next CallState) bool {
	for _, st := range validTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// HasSession reports whether a CallSession exists in this state.
func (s CallState) HasSession() bool {
	return s != CallStateIdle
}

// AcceptsRemoteCandidates reports whether remote ICE candidates are kept in
// this state, either applied or queued until a remote description is set.
func (s CallState) AcceptsRemoteCandidates() bool {
	switch s {
	case CallStateLocalRinging, CallStateRemoteRinging,
		CallStateEstablishingIncoming, CallStateEstablishingOutgoing,
		CallStateActiveCall, CallStateHeld:
		return true
	}
	return false
}

// IsRinging covers both ringing directions.
func (s CallState) IsRinging() bool {
	return s == CallStateLocalRinging || s == CallStateRemoteRinging
}
