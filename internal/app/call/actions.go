package call

import (
	"context"
	"fmt"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/dkeye/callbroker/internal/sdpedit"
	"github.com/rs/zerolog/log"
)

// Call starts an outgoing call. ctx is the cancellation signal of the
// connect attempt; it is observed before the connection is created and
// before the offer goes out.
func (m *Machine) Call(ctx context.Context, peer domain.PeerID, video bool) error {
	if m.state != domain.CallStateIdle {
		return rejected(ActionCall, m.state)
	}
	typ := domain.CallTypeAudio
	if video {
		typ = domain.CallTypeAudioVideo
	}
	m.session = domain.NewCallSession(peer, typ, domain.DirectionOutgoing, m.deps.Now())
	m.transition(domain.CallStateRemoteRinging)

	if err := ctx.Err(); err != nil {
		return m.abortConnect(err)
	}
	if err := m.openConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return m.abortConnect(ctx.Err())
		}
		return m.failNegotiation(ctx, false, fmt.Errorf("create connection: %w", err))
	}

	offer, err := m.handle.CreateOffer(ctx)
	if err == nil {
		offer = sdpedit.Mutate(offer, sdpedit.SendOptions(m.deps.Prefs))
		err = m.handle.SetLocalDescription(ctx, core.SDPTypeOffer, offer)
	}
	if err := ctx.Err(); err != nil {
		return m.abortConnect(err)
	}
	if err != nil {
		return m.failNegotiation(ctx, false, fmt.Errorf("create offer: %w", err))
	}

	if err := m.deps.Signaler.Send(ctx, peer, domain.NewOffer(offer)); err != nil {
		if ctx.Err() != nil {
			return m.abortConnect(ctx.Err())
		}
		m.notifyError(err)
		m.teardown(ctx, false, "")
		return fmt.Errorf("send offer: %w", err)
	}
	log.Info().Str("module", "app.call").Str("session", m.sessionID()).Str("peer", string(peer)).Stringer("type", typ).Msg("offer sent")
	return nil
}

// abortConnect unwinds a canceled connect attempt back to Idle and releases
// anything created so far.
func (m *Machine) abortConnect(cause error) error {
	log.Info().Str("module", "app.call").Str("session", m.sessionID()).Err(cause).Msg("connect canceled")
	m.release()
	m.transition(domain.CallStateIdle)
	m.session = nil
	return fmt.Errorf("%w: %v", ErrCanceled, cause)
}

// failNegotiation surfaces an SDP failure to the UI and forces a hangup.
func (m *Machine) failNegotiation(ctx context.Context, sendBye bool, err error) error {
	err = fmt.Errorf("%w: %v", ErrNegotiation, err)
	log.Error().Err(err).Str("module", "app.call").Str("session", m.sessionID()).Str("peer", string(m.peer())).Msg("negotiation failed")
	m.notifyError(err)
	m.teardown(ctx, sendBye, "negotiation_failed")
	return err
}

// Answer accepts the pending incoming call.
func (m *Machine) Answer(ctx context.Context) error {
	if m.state != domain.CallStateLocalRinging {
		return rejected(ActionAnswer, m.state)
	}
	if err := m.openConnection(ctx); err != nil {
		return m.failNegotiation(ctx, true, fmt.Errorf("create connection: %w", err))
	}

	offer := sdpedit.Mutate(m.remoteOffer, sdpedit.ReceiveOptions(m.deps.Prefs))
	if err := m.applyRemote(ctx, core.SDPTypeOffer, offer); err != nil {
		return m.failNegotiation(ctx, true, fmt.Errorf("apply offer: %w", err))
	}

	answer, err := m.handle.CreateAnswer(ctx)
	if err == nil {
		answer = sdpedit.Mutate(answer, sdpedit.SendOptions(m.deps.Prefs))
		err = m.handle.SetLocalDescription(ctx, core.SDPTypeAnswer, answer)
	}
	if err != nil {
		return m.failNegotiation(ctx, true, fmt.Errorf("create answer: %w", err))
	}

	if err := m.deps.Signaler.Send(ctx, m.peer(), domain.NewAnswer(answer)); err != nil {
		m.notifyError(err)
		m.teardown(ctx, true, "")
		return fmt.Errorf("send answer: %w", err)
	}
	m.transition(domain.CallStateEstablishingIncoming)
	return nil
}

// Reject declines the pending incoming call with an optional reason.
func (m *Machine) Reject(ctx context.Context, reason string) error {
	if m.state != domain.CallStateLocalRinging {
		return rejected(ActionReject, m.state)
	}
	m.teardown(ctx, true, reason)
	return nil
}

func (m *Machine) Hangup(ctx context.Context) error {
	switch m.state {
	case domain.CallStateRemoteRinging,
		domain.CallStateEstablishingIncoming, domain.CallStateEstablishingOutgoing,
		domain.CallStateActiveCall, domain.CallStateHeld:
	default:
		return rejected(ActionHangup, m.state)
	}
	m.teardown(ctx, true, "")
	return nil
}

func (m *Machine) Hold() error {
	if m.state != domain.CallStateActiveCall {
		return rejected(ActionHold, m.state)
	}
	if err := m.handle.SetHeld(true); err != nil {
		return fmt.Errorf("hold: %w", err)
	}
	m.transition(domain.CallStateHeld)
	return nil
}

func (m *Machine) Resume() error {
	if m.state != domain.CallStateHeld {
		return rejected(ActionResume, m.state)
	}
	if err := m.handle.SetHeld(false); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	m.transition(domain.CallStateActiveCall)
	return nil
}

// SetMicrophoneMuted is legal in every state. The value is kept for the
// next session and applied to a live connection right away.
func (m *Machine) SetMicrophoneMuted(muted bool) error {
	m.micMuted = muted
	if m.handle != nil {
		if err := m.handle.SetMicrophoneMuted(muted); err != nil {
			return fmt.Errorf("microphone: %w", err)
		}
	}
	m.notify(core.Event{Kind: core.EventStatus})
	return nil
}

func (m *Machine) SetVideoEnabled(enabled bool) error {
	m.videoEnabled = enabled
	if m.handle != nil && m.session.Type.HasVideo() {
		if err := m.handle.SetVideoEnabled(enabled); err != nil {
			return fmt.Errorf("video: %w", err)
		}
	}
	m.notify(core.Event{Kind: core.EventStatus})
	return nil
}

// SelectDevices stores the selection for the next session. A camera change
// during a call is forwarded as an explicit switch; microphone and speaker
// changes wait for the next session.
func (m *Machine) SelectDevices(sel domain.DeviceSelection) error {
	prev := m.devices
	m.devices = sel
	if m.handle != nil && sel.Camera != "" && sel.Camera != prev.Camera && m.session.Type.HasVideo() {
		if err := m.handle.SwitchCamera(sel.Camera); err != nil {
			m.devices.Camera = prev.Camera
			return fmt.Errorf("switch camera: %w", err)
		}
	}
	if m.handle != nil && (sel.Microphone != prev.Microphone || sel.Speaker != prev.Speaker) {
		log.Info().Str("module", "app.call").Str("session", m.sessionID()).Msg("audio device change applies to next call")
	}
	m.notify(core.Event{Kind: core.EventStatus})
	return nil
}
