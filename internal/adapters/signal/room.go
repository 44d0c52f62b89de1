package signal

import (
	"errors"

	"github.com/dkeye/callbroker/internal/app"
	"github.com/dkeye/callbroker/internal/core"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRegister(sid core.SessionID, conn *WsSignalConn, env domain.ClientEnvelope) {
	room, err := domain.NewRoomID(string(env.RoomID))
	if err != nil || env.ClientID == "" || len(env.ClientID) > domain.MaxPeerIDLen {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("room", string(env.RoomID)).Str("client", string(env.ClientID)).Msg("bad register")
		ctl.sendError(conn, domain.RelayErrBadCredentials)
		return
	}

	err = ctl.Orch.Register(sid, room, env.ClientID)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrAlreadyRegistered):
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room)).Msg("duplicate register ignored")
	case errors.Is(err, core.ErrRoomFull):
		ctl.sendError(conn, domain.RelayErrRoomFull)
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("register")
		ctl.sendError(conn, domain.RelayErrNotRegistered)
	}
}

func (ctl *SignalWSController) handleSend(sid core.SessionID, conn *WsSignalConn, env domain.ClientEnvelope) {
	if len(env.Msg) == 0 {
		ctl.sendError(conn, domain.RelayErrBadPayload)
		return
	}
	err := ctl.Orch.OnFrame(sid, env.To, env.Msg)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrNotRegistered):
		ctl.sendError(conn, domain.RelayErrNotRegistered)
	case errors.Is(err, app.ErrNoPeer):
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("to", string(env.To)).Msg("no peer to forward to")
		ctl.sendError(conn, domain.RelayErrNoPeer)
	case errors.Is(err, app.ErrPeerBusy):
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("to", string(env.To)).Msg("peer busy, frame dropped")
		ctl.sendError(conn, domain.RelayErrPeerBusy)
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("forward")
	}
}
