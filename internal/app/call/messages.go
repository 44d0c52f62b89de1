package call

import (
	"context"
	"fmt"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/dkeye/callbroker/internal/sdpedit"
	"github.com/rs/zerolog/log"
)

// HandleMessage applies one inbound signaling message. Protocol errors are
// logged and returned; they never end the call by themselves.
func (m *Machine) HandleMessage(ctx context.Context, from domain.PeerID, msg domain.Message) error {
	l := log.With().Str("module", "app.call").Str("from", string(from)).Str("type", string(msg.Type)).Stringer("state", m.state).Logger()

	if m.session != nil && from != m.session.Peer {
		if msg.Type == domain.MessageBye && m.state.IsRinging() {
			l.Debug().Str("peer", string(m.session.Peer)).Msg("ignoring bye of another peer while ringing")
			return nil
		}
		l.Warn().Str("peer", string(m.session.Peer)).Msg("ignoring message from unexpected peer")
		return fmt.Errorf("%w: %s", ErrPeerMismatch, from)
	}

	switch msg.Type {
	case domain.MessageOffer:
		return m.onOffer(from, msg)
	case domain.MessageAnswer:
		return m.onAnswer(ctx, msg)
	case domain.MessageCandidate:
		return m.onCandidates(msg)
	case domain.MessageBye:
		if m.session == nil {
			l.Debug().Msg("bye without session")
			return ErrNoSession
		}
		l.Info().Str("reason", msg.Reason).Msg("remote hangup")
		m.teardown(ctx, false, "")
		return nil
	default:
		l.Warn().Msg("unknown message type")
		return fmt.Errorf("%w: %q", domain.ErrUnknownMessageType, msg.Type)
	}
}

func (m *Machine) onOffer(from domain.PeerID, msg domain.Message) error {
	if m.state != domain.CallStateIdle {
		// Duplicate offers and offers racing our own call are not renegotiated.
		log.Warn().Str("module", "app.call").Str("from", string(from)).Stringer("state", m.state).Msg("offer ignored")
		return fmt.Errorf("%w: offer in %s", ErrInvalidState, m.state)
	}
	typ := domain.CallTypeAudio
	if sdpedit.HasMedia(msg.SDP, sdpedit.KindVideo) {
		typ = domain.CallTypeAudioVideo
	}
	m.session = domain.NewCallSession(from, typ, domain.DirectionIncoming, m.deps.Now())
	m.remoteOffer = msg.SDP
	m.transition(domain.CallStateLocalRinging)
	return nil
}

func (m *Machine) onAnswer(ctx context.Context, msg domain.Message) error {
	if m.state != domain.CallStateRemoteRinging || m.handle == nil {
		log.Warn().Str("module", "app.call").Stringer("state", m.state).Msg("answer ignored")
		return fmt.Errorf("%w: answer in %s", ErrInvalidState, m.state)
	}
	answer := sdpedit.Mutate(msg.SDP, sdpedit.ReceiveOptions(m.deps.Prefs))
	if err := m.applyRemote(ctx, core.SDPTypeAnswer, answer); err != nil {
		return m.failNegotiation(ctx, true, fmt.Errorf("apply answer: %w", err))
	}
	m.transition(domain.CallStateEstablishingOutgoing)
	return nil
}

// onCandidates applies remote candidates, or queues them until the remote
// description is set.
func (m *Machine) onCandidates(msg domain.Message) error {
	if !m.state.AcceptsRemoteCandidates() {
		log.Warn().Str("module", "app.call").Stringer("state", m.state).Int("count", len(msg.Candidates)).Msg("candidates ignored")
		return fmt.Errorf("%w: candidate in %s", ErrInvalidState, m.state)
	}
	if m.handle == nil || !m.remoteSet {
		m.queued = append(m.queued, msg.Candidates...)
		log.Debug().Str("module", "app.call").Str("session", m.sessionID()).Int("queued", len(m.queued)).Msg("candidates queued")
		return nil
	}
	for _, c := range msg.Candidates {
		m.addRemoteCandidate(c)
	}
	return nil
}
