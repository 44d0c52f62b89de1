package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/core/coretest"
	"github.com/dkeye/callbroker/internal/domain"
)

type clearCounter struct{ n int }

func (c *clearCounter) Clear() { c.n++ }

type fixture struct {
	m      *Machine
	engine *coretest.Engine
	sig    *coretest.Signaler
	events *coretest.Notifier
	cands  *clearCounter
}

func newFixture(t *testing.T, prefs domain.MediaPreferences) *fixture {
	t.Helper()
	f := &fixture{
		engine: &coretest.Engine{},
		sig:    &coretest.Signaler{},
		events: &coretest.Notifier{},
		cands:  &clearCounter{},
	}
	f.m = NewMachine(Deps{
		Engine:     f.engine,
		Signaler:   f.sig,
		Notifier:   f.events,
		Candidates: f.cands,
		Prefs:      prefs,
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	return f
}

func cand(s string) domain.IceCandidate {
	return domain.IceCandidate{Candidate: s, SDPMid: "0"}
}

func (f *fixture) ringIn(t *testing.T, from domain.PeerID) {
	t.Helper()
	require.NoError(t, f.m.HandleMessage(context.Background(), from, domain.NewOffer(coretest.OfferSDP)))
	require.Equal(t, domain.CallStateLocalRinging, f.m.State())
}

func (f *fixture) active(t *testing.T, peer domain.PeerID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.m.Call(ctx, peer, false))
	require.NoError(t, f.m.HandleMessage(ctx, peer, domain.NewAnswer(coretest.AnswerSDP)))
	f.m.MediaReady(f.m.Session().ID)
	require.Equal(t, domain.CallStateActiveCall, f.m.State())
}

func TestAnswerOnlyInLocalRinging(t *testing.T) {
	ctx := context.Background()
	for _, setup := range []struct {
		name  string
		state domain.CallState
		prep  func(t *testing.T, f *fixture)
	}{
		{"idle", domain.CallStateIdle, func(*testing.T, *fixture) {}},
		{"remote ringing", domain.CallStateRemoteRinging, func(t *testing.T, f *fixture) {
			require.NoError(t, f.m.Call(ctx, "P1", false))
		}},
		{"active", domain.CallStateActiveCall, func(t *testing.T, f *fixture) { f.active(t, "P1") }},
	} {
		t.Run(setup.name, func(t *testing.T) {
			f := newFixture(t, domain.MediaPreferences{})
			setup.prep(t, f)
			sent := len(f.sig.Messages())

			err := f.m.Answer(ctx)
			require.ErrorIs(t, err, ErrInvalidState)
			var ae *ActionError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, ActionAnswer, ae.Action)
			assert.Equal(t, setup.state, ae.State)
			assert.Equal(t, setup.state, f.m.State())
			assert.Len(t, f.sig.Messages(), sent)
		})
	}
}

func TestSecondOfferWhileRingingIsIgnored(t *testing.T) {
	f := newFixture(t, domain.MediaPreferences{})
	f.ringIn(t, "P1")

	err := f.m.HandleMessage(context.Background(), "P2", domain.NewOffer(coretest.OfferSDP))
	require.ErrorIs(t, err, ErrPeerMismatch)
	assert.Equal(t, domain.CallStateLocalRinging, f.m.State())
	assert.Equal(t, domain.PeerID("P1"), f.m.Session().Peer)

	err = f.m.HandleMessage(context.Background(), "P1", domain.NewOffer(coretest.OfferSDP))
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, domain.CallStateLocalRinging, f.m.State())
	assert.Zero(t, f.engine.Count())
}

func TestOutgoingCallReachesActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{AudioRecvBitrate: 64})

	require.NoError(t, f.m.Call(ctx, "P1", false))
	assert.Equal(t, domain.CallStateRemoteRinging, f.m.State())
	s := f.m.Session()
	require.NotNil(t, s)
	assert.Equal(t, domain.DirectionOutgoing, s.Direction)
	assert.Equal(t, domain.CallTypeAudio, s.Type)

	msgs := f.sig.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageOffer, msgs[0].Msg.Type)
	assert.Equal(t, domain.PeerID("P1"), msgs[0].To)
	assert.Contains(t, msgs[0].Msg.SDP, "c=IN IP4 0.0.0.0\r\nb=AS:64\r\n")
	h := f.engine.Last()
	assert.Equal(t, msgs[0].Msg.SDP, h.Local)
	assert.Equal(t, core.SDPTypeOffer, h.LocalType)

	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewAnswer(coretest.AnswerSDP)))
	assert.Equal(t, domain.CallStateEstablishingOutgoing, f.m.State())
	assert.Equal(t, core.SDPTypeAnswer, h.RemoteType)

	f.m.MediaReady(s.ID)
	assert.Equal(t, domain.CallStateActiveCall, f.m.State())
	assert.Equal(t, []domain.CallState{
		domain.CallStateRemoteRinging,
		domain.CallStateEstablishingOutgoing,
		domain.CallStateActiveCall,
	}, f.events.States())
}

func TestIncomingCallAnswer(t *testing.T) {
	ctx := context.Background()
	prefs := domain.MediaPreferences{Opus: domain.OpusOptions{Stereo: true}}
	f := newFixture(t, prefs)

	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewOffer(coretest.VideoOfferSDP)))
	s := f.m.Session()
	assert.Equal(t, domain.DirectionIncoming, s.Direction)
	assert.Equal(t, domain.CallTypeAudioVideo, s.Type)
	assert.Zero(t, f.engine.Count(), "no connection before answer")

	require.NoError(t, f.m.Answer(ctx))
	assert.Equal(t, domain.CallStateEstablishingIncoming, f.m.State())
	h := f.engine.Last()
	assert.True(t, h.Config.Video)
	assert.Contains(t, h.Remote, "a=fmtp:111 minptime=10;stereo=1")
	assert.Equal(t, core.SDPTypeAnswer, h.LocalType)
	assert.Equal(t, []domain.MessageType{domain.MessageAnswer}, f.sig.Types())

	f.m.MediaReady(s.ID)
	assert.Equal(t, domain.CallStateActiveCall, f.m.State())
}

func TestEarlyCandidatesReplayedAfterDescription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{})
	f.ringIn(t, "P1")

	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewCandidates(cand("a"), cand("b"))))
	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewCandidates(cand("c"))))
	require.NoError(t, f.m.Answer(ctx))

	h := f.engine.Last()
	assert.Equal(t, []domain.IceCandidate{cand("a"), cand("b"), cand("c")}, h.Candidates)
	assert.Zero(t, h.RemoteSetBefore)

	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewCandidates(cand("d"))))
	assert.Equal(t, cand("d"), h.Candidates[3])
}

func TestCandidatesBeforeAnswerOnOutgoingCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{})
	require.NoError(t, f.m.Call(ctx, "P1", false))

	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewCandidates(cand("a"))))
	h := f.engine.Last()
	assert.Empty(t, h.Candidates)

	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewAnswer(coretest.AnswerSDP)))
	assert.Equal(t, []domain.IceCandidate{cand("a")}, h.Candidates)
	assert.Zero(t, h.RemoteSetBefore)
}

func TestCandidatesIgnoredWhenIdle(t *testing.T) {
	f := newFixture(t, domain.MediaPreferences{})
	err := f.m.HandleMessage(context.Background(), "P1", domain.NewCandidates(cand("a")))
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, domain.CallStateIdle, f.m.State())
}

func TestByeWithoutSession(t *testing.T) {
	f := newFixture(t, domain.MediaPreferences{})
	err := f.m.HandleMessage(context.Background(), "P1", domain.NewBye("late"))
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, domain.CallStateIdle, f.m.State())
	assert.Empty(t, f.sig.Ended)
	assert.Empty(t, f.events.States())
}

func TestThirdPartyByeIgnoredWhileRinging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{})
	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewOffer(coretest.OfferSDP)))

	require.NoError(t, f.m.HandleMessage(ctx, "P2", domain.NewBye("")))
	assert.Equal(t, domain.CallStateLocalRinging, f.m.State())
	assert.Equal(t, domain.PeerID("P1"), f.m.Session().Peer)
}

func TestRemoteByeTearsDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{})
	f.active(t, "P1")
	h := f.engine.Last()

	err := f.m.HandleMessage(ctx, "P2", domain.NewBye(""))
	require.ErrorIs(t, err, ErrPeerMismatch)
	assert.Equal(t, domain.CallStateActiveCall, f.m.State())

	require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewBye("")))
	assert.Equal(t, domain.CallStateIdle, f.m.State())
	assert.Nil(t, f.m.Session())
	assert.Equal(t, 1, h.ClosedCount())
	assert.Equal(t, 1, f.cands.n)
	assert.Equal(t, []domain.PeerID{"P1"}, f.sig.Ended)
	assert.NotContains(t, f.sig.Types(), domain.MessageBye)
	states := f.events.States()
	assert.Equal(t, []domain.CallState{domain.CallStateHangingUp, domain.CallStateIdle}, states[len(states)-2:])
}

func TestHangup(t *testing.T) {
	ctx := context.Background()

	t.Run("active sends bye", func(t *testing.T) {
		f := newFixture(t, domain.MediaPreferences{})
		f.active(t, "P1")
		require.NoError(t, f.m.Hangup(ctx))
		assert.Equal(t, domain.CallStateIdle, f.m.State())
		msgs := f.sig.Messages()
		assert.Equal(t, domain.MessageBye, msgs[len(msgs)-1].Msg.Type)
		assert.Equal(t, 1, f.engine.Last().ClosedCount())
	})

	t.Run("bye failure still reaches idle", func(t *testing.T) {
		f := newFixture(t, domain.MediaPreferences{})
		f.active(t, "P1")
		f.sig.Err = errors.New("socket closed")
		require.NoError(t, f.m.Hangup(ctx))
		assert.Equal(t, domain.CallStateIdle, f.m.State())
		assert.Equal(t, 1, f.engine.Last().ClosedCount())
	})

	t.Run("establishing", func(t *testing.T) {
		f := newFixture(t, domain.MediaPreferences{})
		require.NoError(t, f.m.Call(ctx, "P1", false))
		require.NoError(t, f.m.HandleMessage(ctx, "P1", domain.NewAnswer(coretest.AnswerSDP)))
		require.NoError(t, f.m.Hangup(ctx))
		assert.Equal(t, domain.CallStateIdle, f.m.State())
	})

	t.Run("rejected while local ringing", func(t *testing.T) {
		f := newFixture(t, domain.MediaPreferences{})
		f.ringIn(t, "P1")
		require.ErrorIs(t, f.m.Hangup(ctx), ErrInvalidState)
		assert.Equal(t, domain.CallStateLocalRinging, f.m.State())
	})

	t.Run("rejected when idle", func(t *testing.T) {
		f := newFixture(t, domain.MediaPreferences{})
		require.ErrorIs(t, f.m.Hangup(ctx), ErrInvalidState)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{})
	f.ringIn(t, "P1")

	require.NoError(t, f.m.Reject(ctx, "busy"))
	assert.Equal(t, domain.CallStateIdle, f.m.State())
	msgs := f.sig.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.NewBye("busy"), msgs[0].Msg)
	assert.Zero(t, f.engine.Count())

	require.ErrorIs(t, f.m.Reject(ctx, ""), ErrInvalidState)
}

func TestHoldResume(t *testing.T) {
	f := newFixture(t, domain.MediaPreferences{})
	require.ErrorIs(t, f.m.Hold(), ErrInvalidState)

	f.active(t, "P1")
	h := f.engine.Last()
	require.NoError(t, f.m.Hold())
	assert.Equal(t, domain.CallStateHeld, f.m.State())
	assert.True(t, h.Held)
	require.ErrorIs(t, f.m.Hold(), ErrInvalidState)

	require.NoError(t, f.m.HandleMessage(context.Background(), "P1", domain.NewCandidates(cand("late"))))
	assert.Contains(t, h.Candidates, cand("late"))

	require.NoError(t, f.m.Resume())
	assert.Equal(t, domain.CallStateActiveCall, f.m.State())
	assert.False(t, h.Held)
	require.ErrorIs(t, f.m.Resume(), ErrInvalidState)
	assert.Equal(t, 1, f.engine.Count(), "hold does not renegotiate")
}

func TestRemoteDescriptionFailureForcesHangup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{})
	require.NoError(t, f.m.Call(ctx, "P1", false))
	f.engine.Last().RemoteErr = errors.New("bad sdp")

	err := f.m.HandleMessage(ctx, "P1", domain.NewAnswer(coretest.AnswerSDP))
	require.ErrorIs(t, err, ErrNegotiation)
	assert.Equal(t, domain.CallStateIdle, f.m.State())
	require.Len(t, f.events.Errors(), 1)
	assert.Equal(t, []domain.MessageType{domain.MessageOffer, domain.MessageBye}, f.sig.Types())
}

func TestCanceledConnectReleasesHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, domain.MediaPreferences{})
	f.sig.OnSend = func(context.Context, domain.Message) {}
	f.engine.Before = func(context.Context) { cancel() }

	err := f.m.Call(ctx, "P1", true)
	require.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, domain.CallStateIdle, f.m.State())
	assert.Nil(t, f.m.Session())
	assert.Empty(t, f.sig.Messages())
	h := f.engine.Last()
	require.NotNil(t, h)
	assert.Equal(t, 1, h.ClosedCount())
}

func TestCanceledBeforeConnectionCreatesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newFixture(t, domain.MediaPreferences{})

	require.ErrorIs(t, f.m.Call(ctx, "P1", false), ErrCanceled)
	assert.Zero(t, f.engine.Count())
	assert.Equal(t, domain.CallStateIdle, f.m.State())
}

func TestMediaFailedActsAsRemoteHangup(t *testing.T) {
	f := newFixture(t, domain.MediaPreferences{})
	f.active(t, "P1")
	id := f.m.Session().ID

	f.m.MediaFailed(context.Background(), "stale-session", errors.New("ice failed"))
	assert.Equal(t, domain.CallStateActiveCall, f.m.State())

	f.m.MediaFailed(context.Background(), id, errors.New("ice failed"))
	assert.Equal(t, domain.CallStateIdle, f.m.State())
	assert.Len(t, f.events.Errors(), 1)
	assert.NotContains(t, f.sig.Types(), domain.MessageBye)
}

func TestConfigurationSurvivesSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MediaPreferences{})

	require.NoError(t, f.m.SetMicrophoneMuted(true))
	require.NoError(t, f.m.SetVideoEnabled(false))
	require.NoError(t, f.m.SelectDevices(domain.DeviceSelection{Camera: "front"}))

	require.NoError(t, f.m.Call(ctx, "P1", true))
	h := f.engine.Last()
	assert.True(t, h.Config.MicMuted)
	assert.Equal(t, "front", h.Config.Devices.Camera)
	assert.True(t, h.VideoDisabled)

	require.NoError(t, f.m.SelectDevices(domain.DeviceSelection{Camera: "back"}))
	assert.Equal(t, "back", h.Camera)
	require.NoError(t, f.m.SetMicrophoneMuted(false))
	assert.False(t, h.MicMuted)

	st := f.m.Status()
	assert.False(t, st.MicMuted)
	assert.False(t, st.VideoEnabled)
	assert.Equal(t, "back", st.Devices.Camera)
	assert.Equal(t, domain.CallStateRemoteRinging, st.State)
}

func TestStatusIsACopy(t *testing.T) {
	f := newFixture(t, domain.MediaPreferences{})
	f.ringIn(t, "P1")
	st := f.m.Status()
	st.Session.Peer = "mallory"
	assert.Equal(t, domain.PeerID("P1"), f.m.Session().Peer)
}

func TestRemoteStreamEventsOfCurrentSessionOnly(t *testing.T) {
	f := newFixture(t, domain.MediaPreferences{})
	f.active(t, "P1")
	f.m.RemoteStream("other", core.RemoteStream{Kind: "audio"})
	f.m.RemoteStream(f.m.Session().ID, core.RemoteStream{Kind: "video", Codec: "video/VP8"})

	got := f.events.Kind(core.EventRemoteStream)
	require.Len(t, got, 1)
	assert.Equal(t, "video/VP8", got[0].Stream.Codec)
	assert.Equal(t, domain.PeerID("P1"), got[0].Peer)
}
