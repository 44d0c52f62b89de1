package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.CandidateFlushDelay)
	assert.Equal(t, 10, cfg.CandidateBatchSize)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 3, cfg.SlowMemberStrikes)
	assert.Equal(t, 10*time.Second, cfg.SlowMemberWindow)
	assert.Equal(t, "opus", cfg.Media.AudioCodec)
	assert.True(t, cfg.Media.Opus.FEC)
	assert.NotEmpty(t, cfg.ClientID, "client id defaults to a fresh uuid")
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
log_level: warn
room_id: r1
client_id: alice
candidate_flush_delay: 250ms
media:
  audio_send_bitrate: 64
  video_initial_bitrate: 300
  video_max_bitrate: 2000
  opus:
    stereo: true
    max_playback_rate: 24000
  camera: front
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "r1", cfg.RoomID)
	assert.Equal(t, "alice", cfg.ClientID)
	assert.Equal(t, 250*time.Millisecond, cfg.CandidateFlushDelay)
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())
	assert.Equal(t, 64, cfg.Media.AudioSendBitrate)
	assert.Equal(t, 300, cfg.Media.VideoInitialBitrate)
	assert.Equal(t, 2000, cfg.Media.VideoMaxBitrate)
	assert.True(t, cfg.Media.Opus.Stereo)
	assert.True(t, cfg.Media.Opus.FEC)
	assert.Equal(t, 24000, cfg.Media.Opus.MaxPlaybackRate)
	assert.Equal(t, "front", cfg.Media.Camera)
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("CALLBROKER_ROOM_ID", "from-env")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.RoomID)
}

func TestLoadFileRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [8080\nmode: : debug\n"), 0o600))

	cfg, err := LoadFile(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), path)
}
