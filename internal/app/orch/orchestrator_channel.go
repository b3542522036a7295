package orch

import (
	"fmt"
	"slices"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/rs/zerolog/log"
)

// JoinChannel adds sid to a channel session. The joiner first receives every
// participant already there, then everyone (the joiner included) receives the
// joiner. Joining twice is a no-op.
func (o *Orchestrator) JoinChannel(sid core.SessionID, id domain.ChannelID) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return fmt.Errorf("%w: no session %s", domain.ErrNotAuthenticated, sid)
	}
	if !id.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidChannelID, id)
	}
	player := sess.Player()
	if !id.IsGlobal() && !slices.Contains(id.Members(), player.ID) {
		return fmt.Errorf("%w: %s in %s", domain.ErrNotMember, player.ID, id)
	}

	ch := o.Channels.GetOrCreate(id)
	existing := ch.Participants()
	if !ch.AddMember(sid, sess) {
		return nil
	}
	o.Registry.AddChannel(sid, id)

	for _, p := range existing {
		if err := o.sendEvent(sess, protocol.TypeParticipantJoined, protocol.ParticipantEvent{Channel: id, Participant: p}); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("participant replay dropped")
		}
	}
	frame, err := protocol.EncodeEvent(protocol.TypeParticipantJoined, protocol.ParticipantEvent{
		Channel:     id,
		Participant: domain.Participant{ID: player.ID, DisplayName: player.Name},
	})
	if err != nil {
		return err
	}
	o.publish(ch, frame)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("channel", string(id)).Msg("joined channel")
	return nil
}

// LeaveChannel is a no-op for a channel sid has not joined.
func (o *Orchestrator) LeaveChannel(sid core.SessionID, id domain.ChannelID) {
	if ch, ok := o.Channels.Get(id); ok {
		o.leave(sid, ch)
	}
}

func (o *Orchestrator) leave(sid core.SessionID, ch core.ChannelSession) {
	o.leaveChannel(sid, ch)
	o.Registry.RemoveChannel(sid, ch.ID())
}

func (o *Orchestrator) leaveChannel(sid core.SessionID, ch core.ChannelSession) {
	ms, ok := ch.RemoveMember(sid)
	if !ok {
		return
	}
	player := ms.Player()
	if ch.MemberCount() == 0 {
		o.Channels.Stop(ch.ID())
	} else if frame, err := protocol.EncodeEvent(protocol.TypeParticipantLeft, protocol.ParticipantEvent{
		Channel:     ch.ID(),
		Participant: domain.Participant{ID: player.ID, DisplayName: player.Name},
	}); err == nil {
		o.publish(ch, frame)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("channel", string(ch.ID())).Msg("left channel")
}

// SendText broadcasts body to every member of a joined channel, the sender
// included.
func (o *Orchestrator) SendText(sid core.SessionID, id domain.ChannelID, body string) (domain.ChatMessage, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return domain.ChatMessage{}, fmt.Errorf("%w: no session %s", domain.ErrNotAuthenticated, sid)
	}
	ch, ok := o.Channels.Get(id)
	if !ok || !ch.Has(sid) {
		return domain.ChatMessage{}, fmt.Errorf("%w: %w: %s", domain.ErrPrecondition, domain.ErrChannelNotJoined, id)
	}
	player := sess.Player()
	msg := domain.NewChatMessage(id, player.ID, player.Name, body)
	frame, err := protocol.EncodeEvent(protocol.TypeTextMessage, protocol.TextMessage{Message: msg})
	if err != nil {
		return msg, err
	}
	o.publish(ch, frame)
	return msg, nil
}

// SendDirect delivers body to one player on their private channel id.
func (o *Orchestrator) SendDirect(sid core.SessionID, to domain.PlayerID, body string) (domain.ChatMessage, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return domain.ChatMessage{}, fmt.Errorf("%w: no session %s", domain.ErrNotAuthenticated, sid)
	}
	target, ok := o.Registry.GetSession(core.SessionOf(to))
	if !ok {
		return domain.ChatMessage{}, fmt.Errorf("%w: %s", domain.ErrPlayerOffline, to)
	}
	player := sess.Player()
	msg := domain.NewChatMessage(domain.PrivateChannelID(player.ID, to), player.ID, player.Name, body)
	if err := o.sendEvent(target, protocol.TypeTextDirect, protocol.TextMessage{Message: msg}); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return msg, nil
}
