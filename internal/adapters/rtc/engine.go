// Package rtc implements the media engine boundary on pion/webrtc.
package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// NewEngine registers the default codecs and interceptors (NACK, RTCP
// reports, TWCC) once; every connection shares the resulting API.
func NewEngine(iceServers []string) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return &Engine{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)),
		config: DefaultWebRTCConfig(iceServers),
	}, nil
}

func (e *Engine) CreateConnection(ctx context.Context, cfg core.ConnectionConfig) (core.ConnectionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c, err := newConnection(pc, cfg)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	log.Info().Str("module", "webrtc").Str("session", cfg.Session).Str("peer", string(cfg.Peer)).Bool("video", cfg.Video).Msg("connection created")
	return c, nil
}
