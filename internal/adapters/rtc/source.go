package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/pion/rtp"
	psdp "github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	opusFrameDuration = 20 * time.Millisecond
	opusFrameSamples  = 960
)

// opusSilence is a single 20ms Opus frame decoding to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type silenceSource struct {
	seq uint16
	ts  uint32
}

func (s *silenceSource) next() *rtp.Packet {
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
		},
		Payload: opusSilence,
	}
	s.seq++
	s.ts += opusFrameSamples
	return p
}

// runSilence keeps the audio track alive until a capture pipeline replaces
// it. Writes are skipped while enabled reports false.
func runSilence(ctx context.Context, track *webrtc.TrackLocalStaticRTP, enabled func() bool) {
	src := &silenceSource{}
	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := src.next()
			if !enabled() {
				continue
			}
			if err := track.WriteRTP(p); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				log.Debug().Err(err).Str("module", "webrtc").Msg("silence write")
			}
		}
	}
}

func remoteStream(track *webrtc.TrackRemote) core.RemoteStream {
	codec := track.Codec()
	return core.RemoteStream{
		Kind:      track.Kind().String(),
		TrackID:   track.ID(),
		StreamID:  track.StreamID(),
		Codec:     codec.MimeType,
		ClockRate: codec.ClockRate,
	}
}

type frameStats struct {
	packets     uint64
	frames      uint64
	payloadType uint8
}

// observe counts a packet and reports whether its payload type differs from
// the previous one.
func (s *frameStats) observe(p *rtp.Packet) bool {
	changed := s.packets > 0 && p.PayloadType != s.payloadType
	s.packets++
	if p.Marker {
		s.frames++
	}
	s.payloadType = p.PayloadType
	return changed
}

// readRemote drains a remote track. Packets are dropped while held; a
// payload type switch is reported as a new stream format.
func (c *WebRTCConnection) readRemote(track *webrtc.TrackRemote) {
	var stats frameStats
	defer func() {
		log.Info().
			Str("module", "webrtc").
			Str("session", c.session).
			Str("track_id", track.ID()).
			Uint64("packets", stats.packets).
			Uint64("frames", stats.frames).
			Msg("remote track ended")
	}()
	for {
		p, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if c.held.Load() {
			continue
		}
		if stats.observe(p) && !c.closed.Load() {
			c.events.OnAddStream(remoteStream(track))
		}
	}
}

// MediaKinds parses raw and lists the media kinds of its m= sections in
// order.
func MediaKinds(raw string) ([]string, error) {
	var desc psdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid session description: %w", err)
	}
	kinds := make([]string, 0, len(desc.MediaDescriptions))
	for _, m := range desc.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds, nil
}
