package orch

import (
	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties the signaling sessions to the channel sessions, the call
// registry and the presence map.
type Orchestrator struct {
	Registry *app.Registry
	Channels core.ChannelFactory
	Policy   app.Policy
	Calls    *app.CallRegistry
	Presence *app.Presence
}

// publish fans frame out to the channel and applies the backpressure policy
// to members that could not keep up.
func (o *Orchestrator) publish(ch core.ChannelSession, frame core.Frame) {
	res := ch.Broadcast(frame)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		sid := core.SessionOf(slow.Player().ID)
		switch o.Policy.OnBackPressure(ch, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("channel", string(ch.ID())).Msg("kicking slow member")
			o.leave(sid, ch)
		case app.MarkSlow, app.DropFrame, app.NoAction:
			log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("channel", string(ch.ID())).Msg("frame dropped")
		}
	}
}

func (o *Orchestrator) send(sess core.MemberSession, env protocol.Envelope) error {
	b, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", env.Type).Msg("encode")
		return err
	}
	return sess.Signal().TrySend(b)
}

func (o *Orchestrator) sendEvent(sess core.MemberSession, typ string, data any) error {
	env, err := protocol.NewEvent(typ, data)
	if err != nil {
		return err
	}
	return o.send(sess, env)
}

// Notify implements app.NotificationSink.
func (o *Orchestrator) Notify(to domain.PlayerID, msg domain.ChatMessage) {
	sess, ok := o.Registry.GetSession(core.SessionOf(to))
	if !ok {
		return
	}
	if err := o.sendEvent(sess, protocol.TypeCallNotification, protocol.TextMessage{Message: msg}); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("player", string(to)).Msg("notification dropped")
	}
}
