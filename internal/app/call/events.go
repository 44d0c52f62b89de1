package call

import (
	"context"
	"fmt"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

// Media engine events carry the id of the session whose connection raised
// them; events of a finished session are dropped.

func (m *Machine) current(session string) bool {
	return m.session != nil && m.session.ID == session
}

// MediaReady moves an establishing call to ActiveCall.
func (m *Machine) MediaReady(session string) {
	if !m.current(session) {
		return
	}
	switch m.state {
	case domain.CallStateEstablishingIncoming, domain.CallStateEstablishingOutgoing:
		m.transition(domain.CallStateActiveCall)
	default:
		log.Debug().Str("module", "app.call").Str("session", session).Stringer("state", m.state).Msg("media ready")
	}
}

// MediaFailed ends the call as if the peer hung up.
func (m *Machine) MediaFailed(ctx context.Context, session string, cause error) {
	if !m.current(session) {
		return
	}
	err := fmt.Errorf("media failed: %w", cause)
	log.Error().Err(err).Str("module", "app.call").Str("session", session).Msg("connection lost")
	m.notifyError(err)
	m.teardown(ctx, false, "")
}

func (m *Machine) RemoteStream(session string, s core.RemoteStream) {
	if !m.current(session) {
		return
	}
	m.notify(core.Event{Kind: core.EventRemoteStream, Stream: &s})
}

func (m *Machine) SignalingState(session string, state string) {
	if !m.current(session) {
		return
	}
	log.Debug().Str("module", "app.call").Str("session", session).Str("signaling", state).Msg("signaling state")
	m.notify(core.Event{Kind: core.EventSignaling, Signaling: state})
}
