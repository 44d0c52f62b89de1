package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dkeye/callbroker/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Media is the media section: codec preferences plus device selection.
type Media struct {
	domain.MediaPreferences `mapstructure:",squash"`
	domain.DeviceSelection  `mapstructure:",squash"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	FallbackRate   int           `mapstructure:"fallback_rate"`
	FallbackWindow time.Duration `mapstructure:"fallback_window"`

	SlowMemberStrikes int           `mapstructure:"slow_member_strikes"`
	SlowMemberWindow  time.Duration `mapstructure:"slow_member_window"`

	RelayWSURL          string        `mapstructure:"relay_ws_url"`
	RelayHTTPURL        string        `mapstructure:"relay_http_url"`
	RoomID              string        `mapstructure:"room_id"`
	ClientID            string        `mapstructure:"client_id"`
	ICEServers          []string      `mapstructure:"ice_servers"`
	ReconnectInterval   time.Duration `mapstructure:"reconnect_interval"`
	CandidateFlushDelay time.Duration `mapstructure:"candidate_flush_delay"`
	CandidateBatchSize  int           `mapstructure:"candidate_batch_size"`

	Media Media `mapstructure:"media"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("fallback_rate", 60)
	v.SetDefault("fallback_window", "1m")
	v.SetDefault("slow_member_strikes", 3)
	v.SetDefault("slow_member_window", "10s")

	v.SetDefault("relay_ws_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("relay_http_url", "http://localhost:8080")
	v.SetDefault("room_id", "lobby")
	v.SetDefault("client_id", "")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("reconnect_interval", "2s")
	v.SetDefault("candidate_flush_delay", "100ms")
	v.SetDefault("candidate_batch_size", 10)

	v.SetDefault("media.audio_codec", "opus")
	v.SetDefault("media.video_codec", "VP8")
	v.SetDefault("media.audio_send_bitrate", 0)
	v.SetDefault("media.audio_recv_bitrate", 0)
	v.SetDefault("media.video_send_bitrate", 0)
	v.SetDefault("media.video_recv_bitrate", 0)
	v.SetDefault("media.video_initial_bitrate", 0)
	v.SetDefault("media.video_max_bitrate", 0)
	v.SetDefault("media.opus.stereo", false)
	v.SetDefault("media.opus.fec", true)
	v.SetDefault("media.opus.dtx", false)
	v.SetDefault("media.opus.max_playback_rate", 0)
	v.SetDefault("media.camera", "")
	v.SetDefault("media.microphone", "")
	v.SetDefault("media.speaker", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml, dev by default.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName over the defaults. A missing file is not an
// error, an unreadable or invalid one is. CALLBROKER_* environment variables
// override both.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("callbroker")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("room", cfg.RoomID).Str("client", cfg.ClientID).Msg("config ready")
	return &cfg, nil
}

// Level is the zerolog level named by log_level, info when unparsable.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
