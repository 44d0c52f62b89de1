package core

import (
	"time"

	"github.com/dkeye/callbroker/internal/domain"
)

type EventKind string

const (
	EventStatus       EventKind = "status"
	EventError        EventKind = "error"
	EventRemoteStream EventKind = "remote_stream"
	EventSignaling    EventKind = "signaling_state"
)

// Event is one discrete UI notification. Session is a copy.
type Event struct {
	Kind      EventKind
	At        time.Time
	State     domain.CallState
	Session   *domain.CallSession
	Peer      domain.PeerID
	Stream    *RemoteStream
	Signaling string
	Err       error
}

type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }
