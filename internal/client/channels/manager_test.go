package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	player domain.Player
	state  domain.LoginState
}

func (s *session) LoginState() domain.LoginState { return s.state }
func (s *session) LocalPlayer() domain.Player    { return s.player }

type transport struct {
	mu        sync.Mutex
	handlers  map[domain.ChannelID]core.ChannelHandler
	connected []domain.ChannelID
	fail      error
	texts     []string
	directs   []string
	muted     map[domain.ChannelID]bool
	direct    func(domain.ChatMessage)
}

func newTransport() *transport {
	return &transport{
		handlers: make(map[domain.ChannelID]core.ChannelHandler),
		muted:    make(map[domain.ChannelID]bool),
	}
}

func (t *transport) Connect(_ context.Context, ch domain.ChannelID, _ domain.TransportKind, _ domain.ConnectFlags) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.connected = append(t.connected, ch)
	return nil
}

func (t *transport) Disconnect(context.Context, domain.ChannelID) error { return nil }

func (t *transport) Mute(ch domain.ChannelID, muted bool) {
	t.mu.Lock()
	t.muted[ch] = muted
	t.mu.Unlock()
}

func (t *transport) SendText(_ context.Context, ch domain.ChannelID, body string) error {
	t.mu.Lock()
	t.texts = append(t.texts, string(ch)+":"+body)
	t.mu.Unlock()
	return nil
}

func (t *transport) SendDirect(_ context.Context, to domain.PlayerID, body string) error {
	t.mu.Lock()
	t.directs = append(t.directs, string(to)+":"+body)
	t.mu.Unlock()
	return nil
}

func (t *transport) Subscribe(ch domain.ChannelID, h core.ChannelHandler) func() {
	t.mu.Lock()
	t.handlers[ch] = h
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.handlers, ch)
		t.mu.Unlock()
	}
}

func (t *transport) SubscribeDirect(fn func(domain.ChatMessage)) func() {
	t.direct = fn
	return func() { t.direct = nil }
}

func (t *transport) handler(ch domain.ChannelID) core.ChannelHandler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers[ch]
}

type registry struct {
	mu  sync.Mutex
	ops []string
}

func (r *registry) log(s string) {
	r.mu.Lock()
	r.ops = append(r.ops, s)
	r.mu.Unlock()
}

func (r *registry) CreateCall(context.Context, domain.ChannelID, []domain.PlayerID) error {
	return nil
}

func (r *registry) RemoveCall(context.Context, domain.ChannelID) error { return nil }

func (r *registry) AddParticipant(_ context.Context, id domain.ChannelID, pid domain.PlayerID) error {
	r.log("add " + string(id) + " " + string(pid))
	return nil
}

func (r *registry) RemoveParticipant(_ context.Context, id domain.ChannelID, pid domain.PlayerID) error {
	r.log("remove " + string(id) + " " + string(pid))
	return nil
}

type fixture struct {
	m   *Manager
	s   *session
	tr  *transport
	reg *registry
	bus *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		s:   &session{player: domain.Player{ID: "me", Name: "Me"}, state: domain.LoggedIn},
		tr:  newTransport(),
		reg: &registry{},
		bus: events.NewBus(),
	}
	f.m = NewManager(f.s, f.tr, f.reg, f.bus, nil)
	t.Cleanup(f.m.Close)
	return f
}

func TestJoinRequiresLogin(t *testing.T) {
	f := newFixture(t)
	f.s.state = domain.LoggingIn

	ch := domain.NewChatChannel(domain.GlobalTextChannelID, GlobalChannelName, "", nil)
	err := f.m.Join(context.Background(), ch, domain.NonPositional, domain.ConnectFlags{Text: true})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Empty(t, f.tr.connected)
	assert.False(t, f.m.ChannelExists(ch.ID))
}

func TestJoinFailureLeavesSetUntouched(t *testing.T) {
	f := newFixture(t)
	f.tr.fail = errors.New("voice server unreachable")

	ch := domain.NewChatChannel(domain.GlobalVoiceChannelID, GlobalChannelName, "", nil)
	err := f.m.Join(context.Background(), ch, domain.Positional, domain.ConnectFlags{Audio: true})
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.False(t, f.m.ChannelExists(ch.ID))
	assert.Nil(t, f.tr.handler(ch.ID), "callbacks are unregistered")
}

func TestGroupVoiceJoinAndLeaveUpdateRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var seen []domain.ChannelID
	events.Subscribe(f.bus, func(e events.ChannelJoined) { seen = append(seen, e.Channel) })
	events.Subscribe(f.bus, func(e events.ChannelLeft) { seen = append(seen, e.Channel) })

	id := domain.ChannelID("group_voice_a_me")
	ch := f.m.VoiceChannel(id, "squad", "a", []domain.PlayerID{"a", "me"})
	require.NoError(t, f.m.Join(ctx, ch, domain.NonPositional, domain.ConnectFlags{Audio: true}))
	got, ok := f.m.GetChannel(id)
	require.True(t, ok)
	assert.Same(t, ch, got)
	assert.Same(t, ch, f.m.VoiceChannel(id, "", "", nil), "joined channel is reused")

	require.NoError(t, f.m.Leave(ctx, ch))
	require.NoError(t, f.m.Leave(ctx, ch), "leaving twice is a no-op")
	assert.False(t, f.m.ChannelExists(id))
	assert.Equal(t, []string{"add group_voice_a_me me", "remove group_voice_a_me me"}, f.reg.ops)
	assert.Equal(t, []domain.ChannelID{id, id}, seen)
}

func TestGlobalVoiceIsNotRegistered(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.ConnectToGlobal(context.Background()))

	assert.True(t, f.m.ChannelExists(domain.GlobalVoiceChannelID))
	assert.True(t, f.m.ChannelExists(domain.GlobalTextChannelID))
	assert.Equal(t, domain.GlobalVoiceChannelID, f.m.CurrentChannel().ID)
	assert.Same(t, f.m.GlobalChannel(), f.m.CurrentChannel())
	assert.True(t, f.m.IsCurrentChannel(domain.GlobalTextChannelID), "siblings match")
	assert.Empty(t, f.reg.ops)
}

func TestPrivateChannelIsLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := domain.PrivateChannelID("me", "you")

	ch, err := f.m.OpenTextChannel(ctx, id, "You", "", nil)
	require.NoError(t, err)
	assert.Empty(t, f.tr.connected, "no transport session")
	assert.Equal(t, domain.PlayerID("you"), ch.TargetID)
	assert.Equal(t, 2, ch.ParticipantCount())
	again, ok := f.m.DirectChannel("you", "me")
	require.True(t, ok)
	assert.Same(t, ch, again)

	require.NoError(t, f.m.Send(ctx, ch, "hi"))
	assert.Equal(t, []string{"you:hi"}, f.tr.directs)
	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].FromSelf)
	assert.Equal(t, "hi", msgs[0].Body)
}

func TestChannelMessagesRecordedOnEcho(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ch, err := f.m.OpenTextChannel(ctx, domain.GlobalTextChannelID, GlobalChannelName, "", nil)
	require.NoError(t, err)

	require.NoError(t, f.m.Send(ctx, ch, "hello"))
	assert.Equal(t, []string{string(domain.GlobalTextChannelID) + ":hello"}, f.tr.texts)
	assert.Empty(t, ch.Messages())

	h := f.tr.handler(ch.ID)
	require.NotNil(t, h)
	h.MessageReceived(domain.ChatMessage{ChannelID: ch.ID, SenderID: "me", Body: "hello"})
	h.MessageReceived(domain.ChatMessage{ChannelID: ch.ID, SenderID: "bob", Body: "$bob is away"})

	msgs := ch.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.KindMessage, msgs[0].Kind)
	assert.Equal(t, domain.KindNotification, msgs[1].Kind)
	assert.Equal(t, "bob is away", msgs[1].Body)
}

func TestSendToUnjoinedChannel(t *testing.T) {
	f := newFixture(t)
	ch := domain.NewChatChannel("group_text_a_me", "squad", "a", nil)
	err := f.m.Send(context.Background(), ch, "x")
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.ErrorIs(t, err, domain.ErrChannelNotJoined)
}

func TestHistoryKeepsLastHundred(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ch, err := f.m.OpenTextChannel(ctx, domain.GlobalTextChannelID, GlobalChannelName, "", nil)
	require.NoError(t, err)
	h := f.tr.handler(ch.ID)
	for i := range 101 {
		h.MessageReceived(domain.ChatMessage{ChannelID: ch.ID, SenderID: "bob", Body: fmt.Sprint(i)})
	}
	msgs := ch.Messages()
	require.Len(t, msgs, domain.MaxMessages)
	assert.Equal(t, "1", msgs[0].Body)
	assert.Equal(t, "100", msgs[len(msgs)-1].Body)
}

func TestDirectMessageOpensPrivateChannel(t *testing.T) {
	f := newFixture(t)
	var got []domain.ChatMessage
	events.Subscribe(f.bus, func(e events.MessageReceived) { got = append(got, e.Message) })

	require.NotNil(t, f.tr.direct)
	f.tr.direct(domain.ChatMessage{SenderID: "you", SenderName: "You", Body: "psst"})

	ch, ok := f.m.DirectChannel("me", "you")
	require.True(t, ok)
	require.Len(t, ch.Messages(), 1)
	assert.Equal(t, domain.PrivateChannelID("me", "you"), ch.Messages()[0].ChannelID)
	require.Len(t, got, 1)
	assert.Equal(t, "psst", got[0].Body)
}

func TestParticipantMuteRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.m.ConnectToGlobal(ctx))
	global := f.m.GlobalChannel()
	h := f.tr.handler(global.ID)
	require.NotNil(t, h)

	h.ParticipantJoined(global.ID, domain.Participant{ID: "me"})
	h.ParticipantJoined(global.ID, domain.Participant{ID: "bob"})
	assert.True(t, f.m.ToggleMutePlayer("eve"))
	h.ParticipantJoined(global.ID, domain.Participant{ID: "eve"})

	p, _ := global.Participant("bob")
	assert.False(t, p.Muted)
	p, _ = global.Participant("eve")
	assert.True(t, p.Muted, "locally muted player")

	// While in a private call, newcomers to global are muted.
	f.m.SetCurrentChannel(domain.NewChatChannel(domain.PrivateChannelID("me", "you").VoiceID(), "", "me", nil))
	h.ParticipantJoined(global.ID, domain.Participant{ID: "dan"})
	p, _ = global.Participant("dan")
	assert.True(t, p.Muted)

	f.m.MuteGlobalChannel()
	p, _ = global.Participant("bob")
	assert.True(t, p.Muted)
	p, _ = global.Participant("me")
	assert.False(t, p.Muted, "self is never muted")
	assert.True(t, f.tr.muted[global.ID])

	f.m.UnmuteGlobalChannel()
	p, _ = global.Participant("bob")
	assert.False(t, p.Muted)
	p, _ = global.Participant("eve")
	assert.True(t, p.Muted, "unmute keeps locally muted players muted")

	assert.False(t, f.m.ToggleMutePlayer("eve"))
	p, _ = global.Participant("eve")
	assert.False(t, p.Muted)
}

func TestParticipantEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var added, removed []domain.PlayerID
	events.Subscribe(f.bus, func(e events.ParticipantAdded) { added = append(added, e.Participant.ID) })
	events.Subscribe(f.bus, func(e events.ParticipantRemoved) { removed = append(removed, e.Participant.ID) })

	require.NoError(t, f.m.ConnectToGlobal(ctx))
	h := f.tr.handler(domain.GlobalVoiceChannelID)
	h.ParticipantJoined(domain.GlobalVoiceChannelID, domain.Participant{ID: "bob"})
	h.ParticipantJoined(domain.GlobalVoiceChannelID, domain.Participant{ID: "bob"})
	h.ParticipantLeft(domain.GlobalVoiceChannelID, domain.Participant{ID: "bob"})
	h.ParticipantLeft(domain.GlobalVoiceChannelID, domain.Participant{ID: "bob"})

	assert.Equal(t, []domain.PlayerID{"bob"}, added)
	assert.Equal(t, []domain.PlayerID{"bob"}, removed)
}

func TestNotifyOpensPrivateTextChannel(t *testing.T) {
	f := newFixture(t)
	id := domain.PrivateChannelID("me", "you")
	f.m.Notify(domain.NewNotification(id, "Call started."))

	ch, ok := f.m.GetChannel(id)
	require.True(t, ok)
	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.KindNotification, msgs[0].Kind)

	f.m.Notify(domain.NewNotification("group_text_a_b", "Call ended."))
	assert.False(t, f.m.ChannelExists("group_text_a_b"))
}
