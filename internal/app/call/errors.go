package call

import (
	"errors"
	"fmt"

	"github.com/dkeye/callbroker/internal/domain"
)

var (
	ErrInvalidState = errors.New("action not allowed in current state")
	ErrPeerMismatch = errors.New("message from unexpected peer")
	ErrNoSession    = errors.New("no call session")
	ErrCanceled     = errors.New("connect attempt canceled")
	ErrNegotiation  = errors.New("negotiation failed")
)

type Action string

const (
	ActionCall   Action = "call"
	ActionAnswer Action = "answer"
	ActionReject Action = "reject"
	ActionHangup Action = "hangup"
	ActionHold   Action = "hold"
	ActionResume Action = "resume"
)

// ActionError is returned for an action the current state does not allow.
// The machine is left untouched.
type ActionError struct {
	Action Action
	State  domain.CallState
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s in %s: %v", e.Action, e.State, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func rejected(a Action, s domain.CallState) error {
	return &ActionError{Action: a, State: s, Err: ErrInvalidState}
}
