package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrMediaFailed = errors.New("peer connection failed")

type WebRTCConnection struct {
	pc      *webrtc.PeerConnection
	session string
	events  core.MediaEvents
	ctx     context.Context
	cancel  context.CancelFunc

	audio       *webrtc.TrackLocalStaticRTP
	video       *webrtc.TrackLocalStaticRTP
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	mu       sync.Mutex
	muted    bool
	videoOff bool
	camera   string
	held     atomic.Bool
	ready    atomic.Bool
	closed   atomic.Bool
}

func newConnection(pc *webrtc.PeerConnection, cfg core.ConnectionConfig) (*WebRTCConnection, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{
		pc:      pc,
		session: cfg.Session,
		events:  cfg.Events,
		ctx:     ctx,
		cancel:  cancel,
		muted:   cfg.MicMuted,
		camera:  cfg.Devices.Camera,
	}
	if c.events == nil {
		c.events = nopEvents{}
	}

	stream := "callbroker-" + cfg.Session
	audio, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", stream)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio track: %w", err)
	}
	c.audio = audio
	if c.audioSender, err = pc.AddTrack(audio); err != nil {
		cancel()
		return nil, fmt.Errorf("add audio track: %w", err)
	}
	if cfg.MicMuted {
		_ = c.audioSender.ReplaceTrack(nil)
	}

	if cfg.Video {
		video, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", stream)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("video track: %w", err)
		}
		c.video = video
		if c.videoSender, err = pc.AddTrack(video); err != nil {
			cancel()
			return nil, fmt.Errorf("add video track: %w", err)
		}
	}

	c.bind()
	go runSilence(ctx, audio, c.sending)
	return c, nil
}

func (c *WebRTCConnection) bind() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.closed.Load() {
			return
		}
		c.events.OnIceCandidate(toDomainCandidate(cand.ToJSON()))
	})

	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		c.events.OnSignalingStateChange(s.String())
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("session", c.session).Str("peer_connection_state", s.String()).Msg("Peer state")
		if c.closed.Load() {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if c.ready.CompareAndSwap(false, true) {
				c.events.OnMediaReady()
			}
		case webrtc.PeerConnectionStateFailed:
			c.events.OnMediaFailed(ErrMediaFailed)
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("session", c.session).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.events.OnAddStream(remoteStream(track))
		go c.readRemote(track)
	})
}

func toDomainCandidate(ci webrtc.ICECandidateInit) domain.IceCandidate {
	out := domain.IceCandidate{Candidate: ci.Candidate}
	if ci.SDPMid != nil {
		out.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		out.SDPMLineIndex = *ci.SDPMLineIndex
	}
	return out
}

func toICECandidateInit(c domain.IceCandidate) webrtc.ICECandidateInit {
	idx := c.SDPMLineIndex
	ci := webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMLineIndex: &idx}
	if c.SDPMid != "" {
		mid := c.SDPMid
		ci.SDPMid = &mid
	}
	return ci
}

func sdpType(typ core.SDPType) (webrtc.SDPType, error) {
	switch typ {
	case core.SDPTypeOffer:
		return webrtc.SDPTypeOffer, nil
	case core.SDPTypeAnswer:
		return webrtc.SDPTypeAnswer, nil
	}
	return webrtc.SDPTypeUnknown, fmt.Errorf("unsupported sdp type %q", typ)
}

func (c *WebRTCConnection) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (c *WebRTCConnection) CreateAnswer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (c *WebRTCConnection) SetLocalDescription(ctx context.Context, typ core.SDPType, sdp string) error {
	t, err := sdpType(typ)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: t, SDP: sdp})
}

// SetRemoteDescription validates sdp before handing it to pion, so a
// malformed description fails with a parse error rather than deep inside
// the engine.
func (c *WebRTCConnection) SetRemoteDescription(ctx context.Context, typ core.SDPType, sdp string) error {
	t, err := sdpType(typ)
	if err != nil {
		return err
	}
	kinds, err := MediaKinds(sdp)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Debug().Str("module", "webrtc").Str("session", c.session).Strs("media", kinds).Str("type", string(typ)).Msg("remote description")
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: sdp})
}

func (c *WebRTCConnection) AddICECandidate(cand domain.IceCandidate) error {
	return c.pc.AddICECandidate(toICECandidateInit(cand))
}

// sending reports whether the silence source should write audio.
func (c *WebRTCConnection) sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.muted && !c.held.Load()
}

func (c *WebRTCConnection) SetMicrophoneMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	if c.held.Load() {
		return nil
	}
	return c.replaceAudioLocked()
}

func (c *WebRTCConnection) SetVideoEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoOff = !enabled
	if c.held.Load() {
		return nil
	}
	return c.replaceVideoLocked()
}

// SetHeld detaches both senders and stops playing remote media. Nothing is
// renegotiated.
func (c *WebRTCConnection) SetHeld(held bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held.Store(held)
	if held {
		if err := c.audioSender.ReplaceTrack(nil); err != nil {
			return err
		}
		if c.videoSender != nil {
			return c.videoSender.ReplaceTrack(nil)
		}
		return nil
	}
	if err := c.replaceAudioLocked(); err != nil {
		return err
	}
	return c.replaceVideoLocked()
}

func (c *WebRTCConnection) replaceAudioLocked() error {
	if c.muted {
		return c.audioSender.ReplaceTrack(nil)
	}
	return c.audioSender.ReplaceTrack(c.audio)
}

func (c *WebRTCConnection) replaceVideoLocked() error {
	if c.videoSender == nil {
		return nil
	}
	if c.videoOff {
		return c.videoSender.ReplaceTrack(nil)
	}
	return c.videoSender.ReplaceTrack(c.video)
}

// SwitchCamera selects the capture device feeding the video track.
func (c *WebRTCConnection) SwitchCamera(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return fmt.Errorf("switch camera: no video track")
	}
	log.Info().Str("module", "webrtc").Str("session", c.session).Str("from", c.camera).Str("to", deviceID).Msg("camera switched")
	c.camera = deviceID
	return nil
}

func (c *WebRTCConnection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("session", c.session).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("session", c.session).Msg("closed")
	return nil
}

type nopEvents struct{}

func (nopEvents) OnIceCandidate(domain.IceCandidate) {}
func (nopEvents) OnAddStream(core.RemoteStream)      {}
func (nopEvents) OnSignalingStateChange(string)      {}
func (nopEvents) OnMediaReady()                      {}
func (nopEvents) OnMediaFailed(error)                {}
