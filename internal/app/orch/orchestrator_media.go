package orch

import (
	"context"

	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

// sessionListener receives engine callbacks for one session. Callbacks of a
// session that is no longer live are dropped.
type sessionListener struct {
	c       *Coordinator
	session string
	peer    domain.PeerID
	epoch   uint64
}

// listen runs inside the gate when a session's connection is created, so the
// captured epoch is retired by the Clear at that session's teardown.
func (c *Coordinator) listen(s domain.CallSession) core.MediaEvents {
	return &sessionListener{c: c, session: s.ID, peer: s.Peer, epoch: c.candidates.Epoch()}
}

func (l *sessionListener) OnIceCandidate(cand domain.IceCandidate) {
	if l.c.liveSession() != l.session {
		log.Debug().Str("module", "app.orch").Str("session", l.session).Msg("dropping candidate of finished session")
		return
	}
	l.c.candidates.Enqueue(l.epoch, l.peer, cand)
}

func (l *sessionListener) OnAddStream(s core.RemoteStream) {
	l.c.post("remote_stream", func(context.Context) error {
		l.c.machine.RemoteStream(l.session, s)
		return nil
	})
}

func (l *sessionListener) OnSignalingStateChange(state string) {
	l.c.post("signaling_state", func(context.Context) error {
		l.c.machine.SignalingState(l.session, state)
		return nil
	})
}

func (l *sessionListener) OnMediaReady() {
	l.c.post("media_ready", func(context.Context) error {
		l.c.machine.MediaReady(l.session)
		return nil
	})
}

func (l *sessionListener) OnMediaFailed(err error) {
	l.c.post("media_failed", func(ctx context.Context) error {
		l.c.machine.MediaFailed(ctx, l.session, err)
		return nil
	})
}
