package signal

import (
	"errors"
	"net/http"

	"github.com/dkeye/callbroker/internal/app"
	"github.com/dkeye/callbroker/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HandleFallback delivers one envelope POSTed by a client whose socket is
// down. The path names the sender: /api/rooms/:room/:client.
func (ctl *SignalWSController) HandleFallback(c *gin.Context) {
	room, err := domain.NewRoomID(c.Param("room"))
	client := domain.ClientID(c.Param("client"))
	if err != nil || client == "" {
		c.JSON(http.StatusBadRequest, domain.RelayEnvelope{Error: domain.RelayErrBadCredentials})
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(room, client) {
		log.Warn().Str("module", "signal").Str("room", string(room)).Str("client", string(client)).Msg("fallback rate limited")
		c.JSON(http.StatusTooManyRequests, domain.RelayEnvelope{Error: domain.RelayErrRateLimited})
		return
	}

	var env domain.ClientEnvelope
	if err := c.ShouldBindJSON(&env); err != nil || len(env.Msg) == 0 {
		c.JSON(http.StatusBadRequest, domain.RelayEnvelope{Error: domain.RelayErrBadPayload})
		return
	}
	if env.Cmd != "" && env.Cmd != domain.CmdSend {
		c.JSON(http.StatusBadRequest, domain.RelayEnvelope{Error: domain.RelayErrBadPayload})
		return
	}

	err = ctl.Orch.Deliver(room, client, env.To, env.Msg)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, app.ErrNoPeer):
		c.JSON(http.StatusNotFound, domain.RelayEnvelope{Error: domain.RelayErrNoPeer})
	case errors.Is(err, app.ErrPeerBusy):
		c.JSON(http.StatusServiceUnavailable, domain.RelayEnvelope{Error: domain.RelayErrPeerBusy})
	default:
		log.Error().Err(err).Str("module", "signal").Str("room", string(room)).Msg("fallback deliver")
		c.JSON(http.StatusInternalServerError, domain.RelayEnvelope{Error: err.Error()})
	}
}
