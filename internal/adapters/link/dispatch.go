package link

import (
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
)

// dispatchLoop delivers pushed envelopes one at a time in arrival order.
func (l *Link) dispatchLoop() {
	for {
		l.mu.Lock()
		batch := l.inbox
		l.inbox = nil
		l.mu.Unlock()

		for _, env := range batch {
			l.dispatch(env)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-l.wake:
		case <-l.done:
			return
		}
	}
}

func (l *Link) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeMapCalls:
		applyUpdate(env, l.Calls, func(k string) domain.ChannelID { return domain.ChannelID(k) })
	case protocol.TypeMapPlayerCalls:
		applyUpdate(env, l.PlayerCalls, func(k string) domain.PlayerID { return domain.PlayerID(k) })
	case protocol.TypeMapPlayers:
		applyUpdate(env, l.Players, func(k string) domain.PlayerID { return domain.PlayerID(k) })

	case protocol.TypeParticipantJoined, protocol.TypeParticipantLeft:
		var ev protocol.ParticipantEvent
		if err := protocol.Bind(env, &ev); err != nil {
			log.Error().Err(err).Str("module", "adapters.link").Msg("bad participant event")
			return
		}
		for _, sub := range l.channelSubs(ev.Channel) {
			if env.Type == protocol.TypeParticipantJoined {
				sub.h.ParticipantJoined(ev.Channel, ev.Participant)
			} else {
				sub.h.ParticipantLeft(ev.Channel, ev.Participant)
			}
		}

	case protocol.TypeTextMessage:
		msg, ok := l.message(env)
		if !ok {
			return
		}
		for _, sub := range l.channelSubs(msg.ChannelID) {
			sub.h.MessageReceived(msg)
		}

	case protocol.TypeTextDirect:
		msg, ok := l.message(env)
		if !ok {
			return
		}
		l.mu.Lock()
		subs := append([]directSub(nil), l.direct...)
		l.mu.Unlock()
		for _, sub := range subs {
			sub.fn(msg)
		}

	case protocol.TypeCallNotification:
		msg, ok := l.message(env)
		if !ok {
			return
		}
		l.mu.Lock()
		fn := l.onNotify
		l.mu.Unlock()
		if fn != nil {
			fn(msg)
		}

	case protocol.TypeCallStarted, protocol.TypeCallCanceled, protocol.TypeCallAccepted, protocol.TypeCallDeclined:
		var sig protocol.Signal
		if err := protocol.Bind(env, &sig); err != nil {
			log.Error().Err(err).Str("module", "adapters.link").Str("type", env.Type).Msg("bad signal")
			return
		}
		l.mu.Lock()
		fn := l.onSignal
		l.mu.Unlock()
		if fn != nil {
			fn(env.Type, env.From, sig)
		}

	case protocol.TypePong:
	default:
		log.Debug().Str("module", "adapters.link").Str("type", env.Type).Msg("unknown push")
	}
}

func applyUpdate[K comparable, V any](env protocol.Envelope, m *replica.Map[K, V], key func(string) K) {
	var upd protocol.MapUpdate
	if err := protocol.Bind(env, &upd); err != nil {
		log.Error().Err(err).Str("module", "adapters.link").Str("type", env.Type).Msg("bad map update")
		return
	}
	op, err := replica.ParseOp(upd.Op)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.link").Msg("bad map op")
		return
	}
	var v V
	if err := upd.Decode(&v); err != nil {
		log.Error().Err(err).Str("module", "adapters.link").Str("type", env.Type).Msg("bad map value")
		return
	}
	m.Apply(op, key(upd.Key), v)
}

func (l *Link) message(env protocol.Envelope) (domain.ChatMessage, bool) {
	var tm protocol.TextMessage
	if err := protocol.Bind(env, &tm); err != nil {
		log.Error().Err(err).Str("module", "adapters.link").Str("type", env.Type).Msg("bad message")
		return domain.ChatMessage{}, false
	}
	msg := tm.Message
	msg.FromSelf = msg.SenderID != "" && msg.SenderID == l.LocalPlayer().ID
	return msg, true
}

func (l *Link) channelSubs(ch domain.ChannelID) []channelSub {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]channelSub(nil), l.channels[ch]...)
}
