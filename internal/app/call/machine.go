// Package call holds the finite-state model of a single P2P call.
//
// A Machine is not safe for concurrent use. Every method must be called by
// the single owner of the call gate (see package orch).
package call

import (
	"context"
	"time"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

const byeTimeout = 3 * time.Second

// CandidateQueue is the local candidate buffer. The machine only discards
// it on teardown; candidates are enqueued by the media event path.
type CandidateQueue interface {
	Clear()
}

type Deps struct {
	Engine     core.MediaEngine
	Signaler   core.Signaler
	Notifier   core.Notifier
	Candidates CandidateQueue
	Prefs      domain.MediaPreferences
	Devices    domain.DeviceSelection
	// Listen returns the media event sink of a new session's connection.
	Listen func(session domain.CallSession) core.MediaEvents
	Now    func() time.Time
}

type Machine struct {
	deps Deps

	state   domain.CallState
	session *domain.CallSession
	handle  core.ConnectionHandle

	remoteOffer string
	remoteSet   bool
	queued      []domain.IceCandidate

	micMuted     bool
	videoEnabled bool
	devices      domain.DeviceSelection
}

func NewMachine(deps Deps) *Machine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = core.NotifierFunc(func(core.Event) {})
	}
	return &Machine{
		deps:         deps,
		state:        domain.CallStateIdle,
		videoEnabled: true,
		devices:      deps.Devices,
	}
}

func (m *Machine) State() domain.CallState { return m.state }

// Session returns a copy of the current session, or nil when Idle.
func (m *Machine) Session() *domain.CallSession {
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

func (m *Machine) Status() domain.CallStatus {
	return domain.CallStatus{
		State:        m.state,
		Session:      m.Session(),
		MicMuted:     m.micMuted,
		VideoEnabled: m.videoEnabled,
		Devices:      m.devices,
	}
}

func (m *Machine) sessionID() string {
	if m.session == nil {
		return ""
	}
	return m.session.ID
}

func (m *Machine) peer() domain.PeerID {
	if m.session == nil {
		return ""
	}
	return m.session.Peer
}

func (m *Machine) transition(to domain.CallState) {
	from := m.state
	if !from.CanTransitionTo(to) {
		// Callers check legality first; reaching this is a bug.
		log.Error().Str("module", "app.call").Stringer("from", from).Stringer("to", to).Msg("illegal transition")
	}
	m.state = to
	if m.session != nil {
		m.session.Phase = to
	}
	log.Info().Str("module", "app.call").Str("session", m.sessionID()).Str("peer", string(m.peer())).
		Stringer("from", from).Stringer("to", to).Msg("transition")
	m.notify(core.Event{Kind: core.EventStatus})
}

func (m *Machine) notify(e core.Event) {
	e.At = m.deps.Now()
	e.State = m.state
	e.Session = m.Session()
	if e.Peer == "" {
		e.Peer = m.peer()
	}
	m.deps.Notifier.Notify(e)
}

func (m *Machine) notifyError(err error) {
	m.notify(core.Event{Kind: core.EventError, Err: err})
}

func (m *Machine) openConnection(ctx context.Context) error {
	var events core.MediaEvents
	if m.deps.Listen != nil {
		events = m.deps.Listen(*m.session)
	}
	h, err := m.deps.Engine.CreateConnection(ctx, core.ConnectionConfig{
		Session:  m.session.ID,
		Peer:     m.session.Peer,
		Video:    m.session.Type.HasVideo(),
		MicMuted: m.micMuted,
		Devices:  m.devices,
		Events:   events,
	})
	if err != nil {
		return err
	}
	m.handle = h
	if m.session.Type.HasVideo() && !m.videoEnabled {
		if err := h.SetVideoEnabled(false); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Msg("disable video on new connection")
		}
	}
	return nil
}

// applyRemote sets the remote description and replays candidates that
// arrived before it, in arrival order.
func (m *Machine) applyRemote(ctx context.Context, typ core.SDPType, sdp string) error {
	if err := m.handle.SetRemoteDescription(ctx, typ, sdp); err != nil {
		return err
	}
	m.remoteSet = true
	queued := m.queued
	m.queued = nil
	for _, c := range queued {
		m.addRemoteCandidate(c)
	}
	if len(queued) > 0 {
		log.Debug().Str("module", "app.call").Str("session", m.sessionID()).Int("count", len(queued)).Msg("replayed queued candidates")
	}
	return nil
}

func (m *Machine) addRemoteCandidate(c domain.IceCandidate) {
	if err := m.handle.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "app.call").Str("session", m.sessionID()).Str("candidate", c.Candidate).Msg("remote candidate rejected")
	}
}

// teardown walks HangingUp back to Idle. Nothing in here is retried: a
// failed bye is logged and local state still reaches Idle.
func (m *Machine) teardown(ctx context.Context, sendBye bool, reason string) {
	if m.state == domain.CallStateIdle {
		return
	}
	peer := m.peer()
	m.transition(domain.CallStateHangingUp)

	if sendBye {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), byeTimeout)
		if err := m.deps.Signaler.Send(bctx, peer, domain.NewBye(reason)); err != nil {
			log.Error().Err(err).Str("module", "app.call").Str("peer", string(peer)).Msg("bye not delivered")
		}
		cancel()
	}
	m.deps.Signaler.EndCall(peer)
	m.release()
	m.transition(domain.CallStateIdle)
	m.session = nil
}

// release frees per-session resources without touching the state.
func (m *Machine) release() {
	if m.handle != nil {
		if err := m.handle.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Str("session", m.sessionID()).Msg("close connection")
		}
		m.handle = nil
	}
	if m.deps.Candidates != nil {
		m.deps.Candidates.Clear()
	}
	m.remoteOffer = ""
	m.remoteSet = false
	m.queued = nil
}

// Reset forces Idle without signaling. It is the recovery path after an
// unexpected failure inside the gate.
func (m *Machine) Reset() {
	m.release()
	m.session = nil
	if m.state != domain.CallStateIdle {
		log.Warn().Str("module", "app.call").Stringer("from", m.state).Msg("forced reset to Idle")
		m.state = domain.CallStateIdle
		m.notify(core.Event{Kind: core.EventStatus})
	}
}
