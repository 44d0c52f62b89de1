// Package coretest provides in-memory implementations of the core boundary
// interfaces for tests.
package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
)

const (
	OfferSDP      = "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111 0\r\nc=IN IP4 0.0.0.0\r\na=rtpmap:111 opus/48000/2\r\na=fmtp:111 minptime=10\r\n"
	AnswerSDP     = "v=0\r\no=- 3 4 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\nc=IN IP4 0.0.0.0\r\na=rtpmap:111 opus/48000/2\r\n"
	VideoOfferSDP = OfferSDP + "m=video 9 UDP/TLS/RTP/SAVPF 96\r\nc=IN IP4 0.0.0.0\r\na=rtpmap:96 VP8/90000\r\n"
)

// Engine hands out Handles and remembers them.
type Engine struct {
	mu      sync.Mutex
	Handles []*Handle
	Configs []core.ConnectionConfig
	Err     error
	// Before runs inside CreateConnection, before the handle is made.
	Before func(ctx context.Context)
}

func (e *Engine) CreateConnection(ctx context.Context, cfg core.ConnectionConfig) (core.ConnectionHandle, error) {
	if e.Before != nil {
		e.Before(ctx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	h := &Handle{Config: cfg, OfferSDP: OfferSDP, AnswerSDP: AnswerSDP}
	e.Handles = append(e.Handles, h)
	e.Configs = append(e.Configs, cfg)
	return h, nil
}

func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Handles) == 0 {
		return nil
	}
	return e.Handles[len(e.Handles)-1]
}

func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Handles)
}

// Handle records every call made on it.
type Handle struct {
	mu     sync.Mutex
	Config core.ConnectionConfig

	OfferSDP  string
	AnswerSDP string

	Local, Remote   string
	LocalType       core.SDPType
	RemoteType      core.SDPType
	Candidates      []domain.IceCandidate
	CandidateCalls  int
	MicMuted        bool
	VideoDisabled   bool
	Held            bool
	Camera          string
	Closed          int
	RemoteErr       error
	LocalErr        error
	RemoteSetBefore int // candidates applied before the remote description
}

func (h *Handle) CreateOffer(context.Context) (string, error)  { return h.OfferSDP, nil }
func (h *Handle) CreateAnswer(context.Context) (string, error) { return h.AnswerSDP, nil }

func (h *Handle) SetLocalDescription(_ context.Context, typ core.SDPType, sdp string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.LocalErr != nil {
		return h.LocalErr
	}
	h.Local, h.LocalType = sdp, typ
	return nil
}

func (h *Handle) SetRemoteDescription(_ context.Context, typ core.SDPType, sdp string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.RemoteErr != nil {
		return h.RemoteErr
	}
	h.Remote, h.RemoteType = sdp, typ
	return nil
}

func (h *Handle) AddICECandidate(c domain.IceCandidate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Remote == "" {
		h.RemoteSetBefore++
	}
	h.Candidates = append(h.Candidates, c)
	h.CandidateCalls++
	return nil
}

func (h *Handle) SetMicrophoneMuted(muted bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.MicMuted = muted
	return nil
}

func (h *Handle) SetVideoEnabled(enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.VideoDisabled = !enabled
	return nil
}

func (h *Handle) SetHeld(held bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Held = held
	return nil
}

func (h *Handle) SwitchCamera(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Camera = id
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Closed++
	return nil
}

func (h *Handle) ClosedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Closed
}

// Sent is one message handed to the Signaler.
type Sent struct {
	To  domain.PeerID
	Msg domain.Message
}

type Signaler struct {
	mu    sync.Mutex
	Sent  []Sent
	Ended []domain.PeerID
	Err   error
	// OnSend runs before a message is recorded.
	OnSend func(ctx context.Context, msg domain.Message)
}

func (s *Signaler) Send(ctx context.Context, to domain.PeerID, msg domain.Message) error {
	if s.OnSend != nil {
		s.OnSend(ctx, msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Sent = append(s.Sent, Sent{To: to, Msg: msg})
	return nil
}

func (s *Signaler) EndCall(peer domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ended = append(s.Ended, peer)
}

func (s *Signaler) Types() []domain.MessageType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MessageType, len(s.Sent))
	for i, m := range s.Sent {
		out[i] = m.Msg.Type
	}
	return out
}

func (s *Signaler) Messages() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.Sent...)
}

// Notifier collects events.
type Notifier struct {
	mu     sync.Mutex
	Events []core.Event
}

func (n *Notifier) Notify(e core.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, e)
}

func (n *Notifier) States() []domain.CallState {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.CallState
	for _, e := range n.Events {
		if e.Kind == core.EventStatus && (len(out) == 0 || out[len(out)-1] != e.State) {
			out = append(out, e.State)
		}
	}
	return out
}

func (n *Notifier) Errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []error
	for _, e := range n.Events {
		if e.Kind == core.EventError {
			out = append(out, e.Err)
		}
	}
	return out
}

func (n *Notifier) Kind(k core.EventKind) []core.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.Event
	for _, e := range n.Events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
