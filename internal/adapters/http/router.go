package http

import (
	"context"
	"net/http"

	"github.com/dkeye/callbroker/internal/adapters/signal"
	"github.com/dkeye/callbroker/internal/app"
	"github.com/dkeye/callbroker/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const tokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every socket a relay member token. Browsers
// keep theirs in the session cookie, so a reconnect replaces the old socket.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(tokenKey).(string)
		if token == "" {
			token = genClientToken()
			s.Set(tokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("CallbrokerSessions", store))

	ctrl := signal.NewSignalWSController(orch,
		signal.NewClientRateLimiter(cfg.FallbackRate, cfg.FallbackWindow),
		cfg.ReadLimit, cfg.PingPeriod)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sockets": orch.Registry.Count()})
	})

	api := r.Group("/api")

	api.GET("/ws/signal", ClientTokenMiddleware(), func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString(tokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.POST("/rooms/:room/:client", ctrl.HandleFallback)
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": orch.Rooms.List()})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
