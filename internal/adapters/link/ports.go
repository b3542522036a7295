package link

import (
	"context"
	"slices"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	_ core.CallRegistry   = (*Link)(nil)
	_ core.CallLookup     = (*Link)(nil)
	_ core.Signaler       = (*Link)(nil)
	_ core.VoiceTransport = (*Link)(nil)
	_ core.Session        = (*Link)(nil)
)

// ---- call registry ----

func (l *Link) CreateCall(ctx context.Context, id domain.ChannelID, members []domain.PlayerID) error {
	_, err := l.request(ctx, protocol.TypeCallCreate, protocol.CallCreate{ID: id, Members: members})
	return err
}

func (l *Link) RemoveCall(ctx context.Context, id domain.ChannelID) error {
	_, err := l.request(ctx, protocol.TypeCallRemove, protocol.CallID{ID: id})
	return err
}

func (l *Link) AddParticipant(ctx context.Context, id domain.ChannelID, pid domain.PlayerID) error {
	_, err := l.request(ctx, protocol.TypeCallAddParticipant, protocol.CallParticipant{ID: id, Player: pid})
	return err
}

func (l *Link) RemoveParticipant(ctx context.Context, id domain.ChannelID, pid domain.PlayerID) error {
	_, err := l.request(ctx, protocol.TypeCallRemoveParticipant, protocol.CallParticipant{ID: id, Player: pid})
	return err
}

func (l *Link) Call(id domain.ChannelID) (domain.VoiceCall, bool) {
	return l.Calls.Get(id)
}

// ---- signaler ----

func (l *Link) SendCallStarted(ctx context.Context, targets []domain.PlayerID, info domain.CallInfo) error {
	return l.signal(ctx, protocol.TypeCallStarted, targets, info)
}

func (l *Link) SendCallCanceled(ctx context.Context, targets []domain.PlayerID, info domain.CallInfo) error {
	return l.signal(ctx, protocol.TypeCallCanceled, targets, info)
}

func (l *Link) SendCallAccepted(ctx context.Context, caller domain.PlayerID, info domain.CallInfo) error {
	return l.signal(ctx, protocol.TypeCallAccepted, []domain.PlayerID{caller}, info)
}

func (l *Link) SendCallDeclined(ctx context.Context, caller domain.PlayerID, info domain.CallInfo) error {
	return l.signal(ctx, protocol.TypeCallDeclined, []domain.PlayerID{caller}, info)
}

func (l *Link) signal(ctx context.Context, typ string, targets []domain.PlayerID, info domain.CallInfo) error {
	if len(targets) == 0 {
		return nil
	}
	_, err := l.request(ctx, typ, protocol.Signal{Targets: targets, Info: info})
	return err
}

// ---- voice transport ----

func (l *Link) Connect(ctx context.Context, ch domain.ChannelID, kind domain.TransportKind, flags domain.ConnectFlags) error {
	_, err := l.request(ctx, protocol.TypeVoiceConnect, protocol.VoiceConnect{Channel: ch, Kind: kind, Flags: flags})
	return err
}

func (l *Link) Disconnect(ctx context.Context, ch domain.ChannelID) error {
	_, err := l.request(ctx, protocol.TypeVoiceDisconnect, protocol.VoiceChannel{Channel: ch})
	l.mu.Lock()
	delete(l.muted, ch)
	l.mu.Unlock()
	return err
}

// Mute toggles local playback of ch. Audio never crosses the signaling link,
// so this only records the state.
func (l *Link) Mute(ch domain.ChannelID, muted bool) {
	l.mu.Lock()
	l.muted[ch] = muted
	l.mu.Unlock()
	log.Debug().Str("module", "adapters.link").Str("channel", string(ch)).Bool("muted", muted).Msg("mute")
}

// Muted reports the last Mute state of ch.
func (l *Link) Muted(ch domain.ChannelID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.muted[ch]
}

func (l *Link) SendText(ctx context.Context, ch domain.ChannelID, body string) error {
	_, err := l.request(ctx, protocol.TypeTextSend, protocol.TextSend{Channel: ch, Body: body})
	return err
}

func (l *Link) SendDirect(ctx context.Context, to domain.PlayerID, body string) error {
	_, err := l.request(ctx, protocol.TypeTextDirect, protocol.TextDirect{To: to, Body: body})
	return err
}

func (l *Link) Subscribe(ch domain.ChannelID, h core.ChannelHandler) (cancel func()) {
	l.mu.Lock()
	l.nextSub++
	id := l.nextSub
	l.channels[ch] = append(l.channels[ch], channelSub{id: id, h: h})
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		subs := slices.DeleteFunc(l.channels[ch], func(s channelSub) bool { return s.id == id })
		if len(subs) == 0 {
			delete(l.channels, ch)
			return
		}
		l.channels[ch] = subs
	}
}

func (l *Link) SubscribeDirect(fn func(domain.ChatMessage)) (cancel func()) {
	l.mu.Lock()
	l.nextSub++
	id := l.nextSub
	l.direct = append(l.direct, directSub{id: id, fn: fn})
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.direct = slices.DeleteFunc(l.direct, func(s directSub) bool { return s.id == id })
		l.mu.Unlock()
	}
}
