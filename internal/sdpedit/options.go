package sdpedit

import "github.com/dkeye/callbroker/internal/domain"

// Options selects the edits Mutate performs. Zero values skip an edit.
type Options struct {
	Opus                *domain.OpusOptions
	AudioCodec          string
	VideoCodec          string
	AudioBitrate        int
	VideoBitrate        int
	VideoInitialBitrate int
	VideoMaxBitrate     int
}

// SendOptions are applied to descriptions this endpoint sends. The
// bandwidth written there caps what the peer sends to us.
func SendOptions(p domain.MediaPreferences) Options {
	return Options{
		AudioCodec:   p.AudioCodec,
		VideoCodec:   p.VideoCodec,
		AudioBitrate: p.AudioRecvBitrate,
		VideoBitrate: p.VideoRecvBitrate,
	}
}

// ReceiveOptions are applied to descriptions received from the peer before
// they reach the media engine, which then honours them when sending.
func ReceiveOptions(p domain.MediaPreferences) Options {
	opus := p.Opus
	return Options{
		Opus:                &opus,
		AudioCodec:          p.AudioCodec,
		VideoCodec:          p.VideoCodec,
		AudioBitrate:        p.AudioSendBitrate,
		VideoBitrate:        p.VideoSendBitrate,
		VideoInitialBitrate: p.VideoInitialBitrate,
		VideoMaxBitrate:     p.VideoMaxBitrate,
	}
}

// Mutate applies, in order: Opus parameters, codec preference, bandwidth
// clamping and video start/max bitrates. When nothing changes raw is
// returned as is.
func Mutate(raw string, o Options) string {
	s := Parse(raw)
	changed := false
	if o.Opus != nil {
		changed = SetOpusOptions(s, *o.Opus) || changed
	}
	if o.AudioCodec != "" {
		changed = PreferCodec(s, KindAudio, o.AudioCodec) || changed
	}
	if o.VideoCodec != "" {
		changed = PreferCodec(s, KindVideo, o.VideoCodec) || changed
	}
	if o.AudioBitrate > 0 {
		changed = SetBandwidth(s, KindAudio, o.AudioBitrate) || changed
	}
	if o.VideoBitrate > 0 {
		changed = SetBandwidth(s, KindVideo, o.VideoBitrate) || changed
	}
	if o.VideoInitialBitrate > 0 || o.VideoMaxBitrate > 0 {
		changed = SetVideoBitrates(s, o.VideoCodec, o.VideoInitialBitrate, o.VideoMaxBitrate) || changed
	}
	if !changed {
		return raw
	}
	return s.String()
}
