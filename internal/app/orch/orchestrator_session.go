package orch

import (
	"context"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
)

// Connect binds a new signaling connection for player, announces the player
// and starts replicating the maps to it. The returned func stops replication.
func (o *Orchestrator) Connect(player domain.Player, conn core.SignalConnection, cancel context.CancelFunc) (core.MemberSession, func()) {
	sid := core.SessionOf(player.ID)
	sess := core.NewMemberSession(player, conn)

	prevChannels := o.Registry.ChannelsOf(sid)
	if prev, prevCancel := o.Registry.BindSignal(sid, sess, cancel); prev != nil {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("replacing previous connection")
		for _, id := range prevChannels {
			if ch, ok := o.Channels.Get(id); ok {
				o.leaveChannel(sid, ch)
			}
		}
		if prevCancel != nil {
			prevCancel()
		}
		prev.Signal().Close()
	}

	if err := o.sendEvent(sess, protocol.TypeWelcome, protocol.Welcome{Player: player}); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("welcome dropped")
	}

	o.Presence.Connect(player)
	o.Calls.AddPlayer(player.ID)

	stopCalls := o.Calls.Calls().Subscribe(forward[domain.ChannelID, domain.VoiceCall](o, sid, sess, protocol.TypeMapCalls))
	stopPlayerCalls := o.Calls.PlayerCalls().Subscribe(forward[domain.PlayerID, domain.CallRef](o, sid, sess, protocol.TypeMapPlayerCalls))
	stopPlayers := o.Presence.Players().Subscribe(forward[domain.PlayerID, domain.PlayerInfo](o, sid, sess, protocol.TypeMapPlayers))

	return sess, func() {
		stopCalls()
		stopPlayerCalls()
		stopPlayers()
	}
}

// forward replicates one map to a session. A replica that misses an update
// would drift, so a session that cannot keep up is disconnected and resyncs
// on reconnect.
func forward[K ~string, V any](o *Orchestrator, sid core.SessionID, sess core.MemberSession, typ string) replica.Handler[K, V] {
	return func(op replica.Op, key K, value V) {
		upd, err := protocol.NewMapUpdate(op.String(), string(key), value)
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("type", typ).Msg("encode map update")
			return
		}
		if err := o.sendEvent(sess, typ, upd); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", typ).Msg("map update dropped, disconnecting")
			o.Registry.Cancel(sid)
		}
	}
}

// OnDisconnect cleans up after the connection of sess closed. A connection
// that was already replaced leaves the player's state alone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID, sess core.MemberSession) {
	channels := o.Registry.ChannelsOf(sid)
	if !o.Registry.Unbind(sid, sess) {
		return
	}
	for _, id := range channels {
		if ch, ok := o.Channels.Get(id); ok {
			o.leaveChannel(sid, ch)
		}
	}
	player := sess.Player()
	o.Calls.RemovePlayer(player.ID)
	o.Presence.Disconnect(player.ID)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}
