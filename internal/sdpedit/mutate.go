package sdpedit

import (
	"strconv"
	"strings"

	"github.com/dkeye/callbroker/internal/domain"
)

const (
	CodecOpus = "opus"
	CodecVP8  = "VP8"

	paramStereo          = "stereo"
	paramFEC             = "useinbandfec"
	paramDTX             = "usedtx"
	paramMaxPlaybackRate = "maxplaybackrate"
	paramMinBitrate      = "x-google-min-bitrate"
	paramMaxBitrate      = "x-google-max-bitrate"
)

// SetOpusOptions writes the Opus fmtp parameters of the first audio section.
// Disabled flags are removed rather than written as 0.
func SetOpusOptions(s *Session, o domain.OpusOptions) bool {
	m := s.FirstMedia(KindAudio)
	if m == nil {
		return false
	}
	pt, ok := m.PayloadFor(CodecOpus)
	if !ok {
		return false
	}
	return m.EditFmtp(pt, func(ps Params) Params {
		ps = setFlag(ps, paramStereo, o.Stereo)
		ps = setFlag(ps, paramFEC, o.FEC)
		ps = setFlag(ps, paramDTX, o.DTX)
		if o.MaxPlaybackRate > 0 {
			ps = ps.Set(paramMaxPlaybackRate, strconv.Itoa(o.MaxPlaybackRate))
		} else {
			ps = ps.Remove(paramMaxPlaybackRate)
		}
		return ps
	})
}

func setFlag(ps Params, key string, on bool) Params {
	if on {
		return ps.Set(key, "1")
	}
	return ps.Remove(key)
}

// PreferCodec moves the payload type of codec to the front of the first
// section of kind. A codec the section does not offer is a no-op.
func PreferCodec(s *Session, kind, codec string) bool {
	m := s.FirstMedia(kind)
	if m == nil {
		return false
	}
	pt, ok := m.PayloadFor(codec)
	if !ok {
		return false
	}
	return m.MoveFormatToFront(pt)
}

// SetBandwidth replaces the b=AS line of the first section of kind with one
// placed right after the section's c= line. kbps <= 0 only removes the old
// line. Sections without a c= line are left untouched.
func SetBandwidth(s *Session, kind string, kbps int) bool {
	m := s.FirstMedia(kind)
	if m == nil {
		return false
	}
	if m.indexOf("c=") < 0 {
		return false
	}
	before := strings.Join(m.Lines, "\n")
	for i := m.indexOf("b=AS:"); i >= 0; i = m.indexOf("b=AS:") {
		m.removeAt(i)
	}
	if kbps > 0 {
		m.insertAt(m.indexOf("c=")+1, "b=AS:"+strconv.Itoa(kbps))
	}
	return strings.Join(m.Lines, "\n") != before
}

// SetVideoBitrates writes x-google-min-bitrate (initial) and
// x-google-max-bitrate (maxKbps) on the fmtp of codec, or of the first video
// payload when codec is empty. initial is clamped to maxKbps.
func SetVideoBitrates(s *Session, codec string, initial, maxKbps int) bool {
	if initial <= 0 && maxKbps <= 0 {
		return false
	}
	m := s.FirstMedia(KindVideo)
	if m == nil {
		return false
	}
	var pt string
	if codec != "" {
		p, ok := m.PayloadFor(codec)
		if !ok {
			return false
		}
		pt = p
	} else if len(m.Formats) > 0 {
		pt = m.Formats[0]
	} else {
		return false
	}
	if maxKbps > 0 && initial > maxKbps {
		initial = maxKbps
	}
	return m.EditFmtp(pt, func(ps Params) Params {
		if initial > 0 {
			ps = ps.Set(paramMinBitrate, strconv.Itoa(initial))
		}
		if maxKbps > 0 {
			ps = ps.Set(paramMaxBitrate, strconv.Itoa(maxKbps))
		}
		return ps
	})
}
