// Package presence follows the server's player map on the client.
package presence

import (
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
)

// Tracker turns the player mirror into presence events.
type Tracker struct {
	players *replica.Map[domain.PlayerID, domain.PlayerInfo]
	bus     *events.Bus

	mu   sync.Mutex
	stop func()
}

func NewTracker(players *replica.Map[domain.PlayerID, domain.PlayerInfo], bus *events.Bus) *Tracker {
	return &Tracker{players: players, bus: bus}
}

// Start subscribes to the mirror. Players already present are announced as
// connected.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = t.players.Subscribe(replica.Dedup(&replica.Filter[replica.PresenceInfo]{}, replica.PresenceKey, t.handle))
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (t *Tracker) handle(op replica.Op, id domain.PlayerID, info domain.PlayerInfo) {
	switch op {
	case replica.OpAdd:
		log.Debug().Str("module", "client.presence").Str("player", string(id)).Str("name", info.Name).Msg("connected")
		events.Publish(t.bus, events.PlayerConnected{ID: id, Info: info})
	case replica.OpRemove:
		log.Debug().Str("module", "client.presence").Str("player", string(id)).Msg("disconnected")
		events.Publish(t.bus, events.PlayerDisconnected{ID: id, Info: info})
	case replica.OpSet:
		log.Debug().Str("module", "client.presence").Str("player", string(id)).Str("name", info.Name).Msg("updated")
		events.Publish(t.bus, events.PlayerUpdated{ID: id, Info: info})
	}
}

func (t *Tracker) IsConnected(id domain.PlayerID) bool {
	return t.players.Contains(id)
}

// Name returns the display name of id, or id itself when unknown.
func (t *Tracker) Name(id domain.PlayerID) string {
	if info, ok := t.players.Get(id); ok && info.Name != "" {
		return info.Name
	}
	return string(id)
}

func (t *Tracker) Players() map[domain.PlayerID]domain.PlayerInfo {
	return t.players.Snapshot()
}
