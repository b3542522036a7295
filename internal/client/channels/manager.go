// Package channels tracks the channels the local player has joined and keeps
// their participants and message history in sync with the voice transport.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const GlobalChannelName = "Global channel"

// Names resolves a display name for a player.
type Names interface {
	Name(id domain.PlayerID) string
}

type Manager struct {
	session   core.Session
	transport core.VoiceTransport
	registry  core.CallRegistry
	bus       *events.Bus
	names     Names

	mu      sync.Mutex
	active  map[domain.ChannelID]*domain.ChatChannel
	subs    map[domain.ChannelID]func()
	current *domain.ChatChannel
	global  *domain.ChatChannel
	muted   map[domain.PlayerID]bool

	stopDirect func()
}

// NewManager subscribes to direct messages right away; Close releases it.
func NewManager(session core.Session, transport core.VoiceTransport, registry core.CallRegistry, bus *events.Bus, names Names) *Manager {
	m := &Manager{
		session:   session,
		transport: transport,
		registry:  registry,
		bus:       bus,
		names:     names,
		active:    make(map[domain.ChannelID]*domain.ChatChannel),
		subs:      make(map[domain.ChannelID]func()),
		muted:     make(map[domain.PlayerID]bool),
	}
	m.stopDirect = transport.SubscribeDirect(m.onDirect)
	return m
}

func (m *Manager) Close() {
	m.stopDirect()
	m.Clear()
}

// Join connects ch and adds it to the joined set once the transport confirms.
// A failed connect leaves the set untouched and is not retried.
func (m *Manager) Join(ctx context.Context, ch *domain.ChatChannel, kind domain.TransportKind, flags domain.ConnectFlags) error {
	if m.session.LoginState() != domain.LoggedIn {
		return fmt.Errorf("join %s: %w", ch.ID, domain.ErrNotAuthenticated)
	}
	if m.ChannelExists(ch.ID) {
		return nil
	}

	cancel := m.transport.Subscribe(ch.ID, &channelHandler{m: m, ch: ch})
	if err := m.transport.Connect(ctx, ch.ID, kind, flags); err != nil {
		cancel()
		log.Error().Err(err).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("could not connect to channel")
		if errors.Is(err, domain.ErrTransport) {
			return fmt.Errorf("join %s: %w", ch.ID, err)
		}
		return fmt.Errorf("join %s: %w: %w", ch.ID, domain.ErrTransport, err)
	}

	m.mu.Lock()
	m.active[ch.ID] = ch
	m.subs[ch.ID] = cancel
	m.mu.Unlock()
	log.Info().Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("joined")
	events.Publish(m.bus, events.ChannelJoined{Channel: ch.ID})

	if ch.IsVoice() && !ch.IsGlobal() {
		self := m.session.LocalPlayer().ID
		if err := m.registry.AddParticipant(ctx, ch.ID, self); err != nil {
			log.Error().Err(err).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("add call participant")
			if lErr := m.Leave(ctx, ch); lErr != nil {
				log.Warn().Err(lErr).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("rollback leave")
			}
			return fmt.Errorf("join %s: %w", ch.ID, err)
		}
	}
	return nil
}

// Leave disconnects ch. The channel stays joined until the disconnect has
// completed. Leaving a channel that is not joined is a no-op.
func (m *Manager) Leave(ctx context.Context, ch *domain.ChatChannel) error {
	m.mu.Lock()
	_, ok := m.active[ch.ID]
	cancel, hasSession := m.subs[ch.ID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if hasSession {
		if err := m.transport.Disconnect(ctx, ch.ID); err != nil {
			if errors.Is(err, domain.ErrTransport) {
				log.Error().Err(err).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("disconnect")
				return fmt.Errorf("leave %s: %w", ch.ID, err)
			}
			log.Warn().Err(err).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("disconnect rejected, dropping channel")
		}
		cancel()
	}

	m.mu.Lock()
	delete(m.active, ch.ID)
	delete(m.subs, ch.ID)
	m.mu.Unlock()
	ch.ClearParticipants()
	log.Info().Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("left")
	events.Publish(m.bus, events.ChannelLeft{Channel: ch.ID})

	if hasSession && ch.IsVoice() && !ch.IsGlobal() {
		self := m.session.LocalPlayer().ID
		if err := m.registry.RemoveParticipant(ctx, ch.ID, self); err != nil {
			log.Warn().Err(err).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("remove call participant")
		}
	}
	return nil
}

func (m *Manager) GetChannel(id domain.ChannelID) (*domain.ChatChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.active[id]
	return ch, ok
}

func (m *Manager) ChannelExists(id domain.ChannelID) bool {
	_, ok := m.GetChannel(id)
	return ok
}

// ConnectToGlobal joins the positional global voice channel and the global
// text channel, and makes global voice current.
func (m *Manager) ConnectToGlobal(ctx context.Context) error {
	voice := m.VoiceChannel(domain.GlobalVoiceChannelID, GlobalChannelName, "", nil)
	m.mu.Lock()
	m.global = voice
	m.mu.Unlock()
	m.SetCurrentChannel(voice)

	if err := m.Join(ctx, voice, domain.Positional, domain.ConnectFlags{Audio: true, SwitchTransmission: true}); err != nil {
		return err
	}
	_, err := m.OpenTextChannel(ctx, domain.GlobalTextChannelID, GlobalChannelName, "", nil)
	return err
}

// OpenTextChannel returns the joined text channel id, joining it first. A
// private channel has no transport session: it is created locally with both
// players as participants and messages travel as direct messages.
func (m *Manager) OpenTextChannel(ctx context.Context, id domain.ChannelID, name string, moderator domain.PlayerID, members []domain.PlayerID) (*domain.ChatChannel, error) {
	if ch, ok := m.GetChannel(id); ok {
		return ch, nil
	}
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidChannelID, id)
	}

	if !id.IsPrivate() {
		ch := domain.NewChatChannel(id, name, moderator, members)
		if err := m.Join(ctx, ch, domain.NonPositional, domain.ConnectFlags{Text: true}); err != nil {
			return nil, err
		}
		return ch, nil
	}

	self := m.session.LocalPlayer()
	ch := domain.NewChatChannel(id, name, self.ID, id.Members())
	ch.AddParticipant(domain.Participant{ID: self.ID, DisplayName: self.Name})
	ch.AddParticipant(domain.Participant{ID: ch.TargetID, DisplayName: m.nameOf(ch.TargetID, name)})

	m.mu.Lock()
	if prev, ok := m.active[id]; ok {
		m.mu.Unlock()
		return prev, nil
	}
	m.active[id] = ch
	m.mu.Unlock()
	events.Publish(m.bus, events.ChannelJoined{Channel: id})
	return ch, nil
}

// VoiceChannel returns the joined channel id or a new, unjoined one.
func (m *Manager) VoiceChannel(id domain.ChannelID, name string, moderator domain.PlayerID, members []domain.PlayerID) *domain.ChatChannel {
	if ch, ok := m.GetChannel(id); ok {
		return ch
	}
	return domain.NewChatChannel(id, name, moderator, members)
}

func (m *Manager) DirectChannel(a, b domain.PlayerID) (*domain.ChatChannel, bool) {
	return m.GetChannel(domain.PrivateChannelID(a, b))
}

// Send delivers body to ch and returns once the server has confirmed it.
// Private channels go to the other member as a direct message and are
// recorded locally; other channels are recorded when the broadcast echoes.
func (m *Manager) Send(ctx context.Context, ch *domain.ChatChannel, body string) error {
	if ch.IsPrivate() {
		if err := m.transport.SendDirect(ctx, ch.TargetID, body); err != nil {
			log.Error().Err(err).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("send direct")
			return fmt.Errorf("send %s: %w", ch.ID, err)
		}
		self := m.session.LocalPlayer()
		msg := domain.NewChatMessage(ch.ID, self.ID, self.Name, body)
		msg.FromSelf = true
		m.deliver(ch, msg)
		return nil
	}
	if !m.ChannelExists(ch.ID) {
		return fmt.Errorf("send %s: %w: %w", ch.ID, domain.ErrPrecondition, domain.ErrChannelNotJoined)
	}
	if err := m.transport.SendText(ctx, ch.ID, body); err != nil {
		log.Error().Err(err).Str("module", "client.channels").Str("channel", string(ch.ID)).Msg("send text")
		return fmt.Errorf("send %s: %w", ch.ID, err)
	}
	return nil
}

// SendLocalNotification appends a notification only this client sees.
func (m *Manager) SendLocalNotification(ch *domain.ChatChannel, body string) {
	msg := domain.NewNotification(ch.ID, body)
	msg.FromSelf = true
	m.deliver(ch, msg)
}

// Notify records a server call notification in its text channel. A private
// text channel is opened if needed; notifications for other channels the
// player has not joined are dropped.
func (m *Manager) Notify(msg domain.ChatMessage) {
	ch, ok := m.GetChannel(msg.ChannelID)
	if !ok && msg.ChannelID.IsPrivate() {
		var err error
		ch, err = m.OpenTextChannel(context.Background(), msg.ChannelID, "", "", nil)
		ok = err == nil
	}
	if !ok {
		log.Debug().Str("module", "client.channels").Str("channel", string(msg.ChannelID)).Msg("notification for unjoined channel")
		return
	}
	msg.Kind = domain.KindNotification
	m.deliver(ch, msg)
}

func (m *Manager) deliver(ch *domain.ChatChannel, msg domain.ChatMessage) {
	ch.AddMessage(msg)
	events.Publish(m.bus, events.MessageReceived{Message: msg})
}

func (m *Manager) CurrentChannel() *domain.ChatChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) SetCurrentChannel(ch *domain.ChatChannel) {
	m.mu.Lock()
	m.current = ch
	m.mu.Unlock()
	events.Publish(m.bus, events.CurrentChannelChanged{Channel: ch.ID})
}

func (m *Manager) GlobalChannel() *domain.ChatChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global
}

// IsCurrentChannel matches either sibling of the current conversation.
func (m *Manager) IsCurrentChannel(id domain.ChannelID) bool {
	cur := m.CurrentChannel()
	return cur != nil && cur.ID.VoiceID() == id.VoiceID()
}

func (m *Manager) MuteCurrentChannel(mute bool) {
	if cur := m.CurrentChannel(); cur != nil {
		m.muteChannel(cur, mute, false)
	}
}

func (m *Manager) MuteGlobalChannel() {
	if g := m.GlobalChannel(); g != nil {
		m.muteChannel(g, true, false)
	}
}

// UnmuteGlobalChannel keeps players muted locally muted.
func (m *Manager) UnmuteGlobalChannel() {
	if g := m.GlobalChannel(); g != nil {
		m.muteChannel(g, false, true)
	}
}

func (m *Manager) muteChannel(ch *domain.ChatChannel, mute, keepMuted bool) {
	self := m.session.LocalPlayer().ID
	others := lo.Filter(ch.Participants(), func(p domain.Participant, _ int) bool {
		return p.ID != self && !(keepMuted && m.IsPlayerMuted(p.ID))
	})
	for _, p := range others {
		ch.SetParticipantMuted(p.ID, mute)
	}
	ch.SetMuted(mute)
	m.transport.Mute(ch.ID, mute)
}

// ToggleMutePlayer flips the local mute of id and reports the new state.
func (m *Manager) ToggleMutePlayer(id domain.PlayerID) bool {
	m.mu.Lock()
	muted := !m.muted[id]
	if muted {
		m.muted[id] = true
	} else {
		delete(m.muted, id)
	}
	joined := lo.Values(m.active)
	m.mu.Unlock()

	for _, ch := range joined {
		if ch.IsVoice() {
			ch.SetParticipantMuted(id, muted)
		}
	}
	return muted
}

func (m *Manager) IsPlayerMuted(id domain.PlayerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted[id]
}

// Clear forgets every joined channel without disconnecting.
func (m *Manager) Clear() {
	m.mu.Lock()
	subs := lo.Values(m.subs)
	m.active = make(map[domain.ChannelID]*domain.ChatChannel)
	m.subs = make(map[domain.ChannelID]func())
	m.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
}

func (m *Manager) nameOf(id domain.PlayerID, fallback string) string {
	if m.names != nil {
		if n := m.names.Name(id); n != "" && n != string(id) {
			return n
		}
	}
	if fallback != "" {
		return fallback
	}
	return string(id)
}

func (m *Manager) onDirect(msg domain.ChatMessage) {
	self := m.session.LocalPlayer().ID
	if msg.SenderID == "" || msg.SenderID == self {
		return
	}
	id := domain.PrivateChannelID(self, msg.SenderID)
	ch, err := m.OpenTextChannel(context.Background(), id, msg.SenderName, self, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "client.channels").Str("from", string(msg.SenderID)).Msg("direct channel")
		return
	}
	msg.ChannelID = id
	m.deliver(ch, msg)
}

type channelHandler struct {
	m  *Manager
	ch *domain.ChatChannel
}

func (h *channelHandler) ParticipantJoined(_ domain.ChannelID, p domain.Participant) {
	m := h.m
	self := m.session.LocalPlayer().ID
	if p.ID != self && h.ch.IsVoice() {
		cur := m.CurrentChannel()
		if m.IsPlayerMuted(p.ID) || (h.ch.IsGlobal() && cur != nil && cur.IsPrivate()) {
			p.Muted = true
		}
	}
	if !h.ch.AddParticipant(p) {
		return
	}
	events.Publish(m.bus, events.ParticipantAdded{Channel: h.ch.ID, Participant: p})
}

func (h *channelHandler) ParticipantLeft(_ domain.ChannelID, p domain.Participant) {
	if removed, ok := h.ch.RemoveParticipant(p.ID); ok {
		events.Publish(h.m.bus, events.ParticipantRemoved{Channel: h.ch.ID, Participant: removed})
	}
}

func (h *channelHandler) MessageReceived(msg domain.ChatMessage) {
	if rest, ok := strings.CutPrefix(msg.Body, domain.NotificationPrefix); ok {
		msg.Body = rest
		msg.Kind = domain.KindNotification
	}
	h.m.deliver(h.ch, msg)
}
