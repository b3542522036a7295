package http

import (
	"net/http"
	"strconv"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	deps Deps
}

type LoginRequest struct {
	Name string `json:"name" binding:"required,max=36"`
	Bot  bool   `json:"bot"`
}

type LoginResponse struct {
	Player domain.Player `json:"player"`
	Token  string        `json:"token"`
}

func (h *handlers) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	player, err := domain.NewPlayer(req.Name, req.Bot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.deps.Auth.Issue(*player)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionTokenKey, token)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
	log.Info().Str("module", "adapters.http").Str("player", string(player.ID)).Str("name", player.Name).Msg("login")
	c.JSON(http.StatusOK, LoginResponse{Player: *player, Token: token})
}

func (h *handlers) players(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"players":  h.deps.Orch.Presence.Snapshot(),
		"sessions": h.deps.Orch.Registry.Count(),
	})
}

func (h *handlers) calls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": h.deps.Orch.Calls.List()})
}

func (h *handlers) channels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": h.deps.Orch.Channels.List()})
}

func (h *handlers) history(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := h.deps.History.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("call history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs})
}
