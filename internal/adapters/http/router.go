package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/voicesync/internal/adapters/signal"
	"github.com/dkeye/voicesync/internal/app/orch"
	"github.com/dkeye/voicesync/internal/auth"
	"github.com/dkeye/voicesync/internal/config"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/storage"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionTokenKey = "player_token"
	playerKey       = "player"
)

type Deps struct {
	Orch    *orch.Orchestrator
	Signal  *signal.SignalWSController
	Auth    *auth.Issuer
	History *storage.CallLog
}

// PlayerMiddleware resolves the player from a bearer token, a ?token= query
// parameter or the cookie session, in that order. Requests without a valid
// token pass through unauthenticated.
func PlayerMiddleware(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			if v, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
				token = v
			}
		}
		if token != "" {
			if p, err := iss.Validate(token); err == nil {
				c.Set(playerKey, p)
			} else {
				log.Debug().Err(err).Str("module", "adapters.http").Msg("rejected token")
			}
		}
		c.Next()
	}
}

func playerOf(c *gin.Context) (domain.Player, bool) {
	v, ok := c.Get(playerKey)
	if !ok {
		return domain.Player{}, false
	}
	p, ok := v.(domain.Player)
	return p, ok
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(PlayerMiddleware(deps.Auth))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{deps: deps}
	api := r.Group("/api")

	api.POST("/login", h.login)
	api.GET("/players", h.players)
	api.GET("/calls", h.calls)
	api.GET("/calls/history", h.history)
	api.GET("/channels", h.channels)

	api.GET("/ws/signal", func(c *gin.Context) {
		player, ok := playerOf(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		log.Info().Str("module", "adapters.http").Str("player", string(player.ID)).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c, player)
	})

	return r
}
