package app

import (
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
)

// Presence is the authoritative map of connected players.
type Presence struct {
	players *replica.Map[domain.PlayerID, domain.PlayerInfo]
}

func NewPresence() *Presence {
	return &Presence{players: replica.NewMap[domain.PlayerID, domain.PlayerInfo]()}
}

func (p *Presence) Players() *replica.Map[domain.PlayerID, domain.PlayerInfo] { return p.players }

func (p *Presence) Connect(player domain.Player) {
	p.players.Set(player.ID, player.Info())
	log.Info().Str("module", "app.presence").Str("player", string(player.ID)).Str("name", player.Name).Bool("bot", player.IsBot).Msg("player connected")
}

func (p *Presence) Disconnect(id domain.PlayerID) {
	if _, ok := p.players.Remove(id); ok {
		log.Info().Str("module", "app.presence").Str("player", string(id)).Msg("player disconnected")
	}
}

func (p *Presence) IsConnected(id domain.PlayerID) bool { return p.players.Contains(id) }

// Name falls back to the id for unknown players.
func (p *Presence) Name(id domain.PlayerID) string {
	if info, ok := p.players.Get(id); ok {
		return info.Name
	}
	return string(id)
}

func (p *Presence) Count() int { return p.players.Len() }

func (p *Presence) Snapshot() map[domain.PlayerID]domain.PlayerInfo { return p.players.Snapshot() }
