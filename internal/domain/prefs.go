package domain

// OpusOptions are the receive-side Opus format parameters. A false or zero
// value removes the parameter instead of writing a 0.
type OpusOptions struct {
	Stereo          bool `mapstructure:"stereo" json:"stereo"`
	FEC             bool `mapstructure:"fec" json:"fec"`
	DTX             bool `mapstructure:"dtx" json:"dtx"`
	MaxPlaybackRate int  `mapstructure:"max_playback_rate" json:"max_playback_rate"`
}

// MediaPreferences steer offer/answer construction. Bitrates are kbps; zero
// leaves the engine default in place.
type MediaPreferences struct {
	AudioCodec          string      `mapstructure:"audio_codec" json:"audio_codec"`
	VideoCodec          string      `mapstructure:"video_codec" json:"video_codec"`
	AudioSendBitrate    int         `mapstructure:"audio_send_bitrate" json:"audio_send_bitrate"`
	AudioRecvBitrate    int         `mapstructure:"audio_recv_bitrate" json:"audio_recv_bitrate"`
	VideoSendBitrate    int         `mapstructure:"video_send_bitrate" json:"video_send_bitrate"`
	VideoRecvBitrate    int         `mapstructure:"video_recv_bitrate" json:"video_recv_bitrate"`
	VideoInitialBitrate int         `mapstructure:"video_initial_bitrate" json:"video_initial_bitrate"`
	VideoMaxBitrate     int         `mapstructure:"video_max_bitrate" json:"video_max_bitrate"`
	Opus                OpusOptions `mapstructure:"opus" json:"opus"`
}

// DeviceSelection is read at session start; mid-call changes are explicit
// reconfiguration requests.
type DeviceSelection struct {
	Camera     string `mapstructure:"camera" json:"camera,omitempty"`
	Microphone string `mapstructure:"microphone" json:"microphone,omitempty"`
	Speaker    string `mapstructure:"speaker" json:"speaker,omitempty"`
}
