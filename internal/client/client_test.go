package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicesync/internal/config"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/dkeye/voicesync/internal/server"
)

const (
	wait = 3 * time.Second
	tick = 10 * time.Millisecond
)

func newServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Defaults()
	cfg.Mode = "release"
	cfg.HistoryDB = ""
	cfg.Secret = "test-secret"
	cfg.SignalRateLimit = 100
	cfg.SignalRateInterval = time.Second

	srv := server.New(ctx, cfg)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		cancel()
		ts.Close()
		srv.Close()
	})
	return srv, ts.URL
}

func start(t *testing.T, url, name string, autoAccept bool) *Client {
	t.Helper()
	c := New(config.ClientConfig{
		ServerURL:      url,
		Name:           name,
		Bot:            true,
		AutoAccept:     autoAccept,
		RequestTimeout: wait,
	})
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Close)
	return c
}

func privateChannel(t *testing.T, from, to *Client) *domain.ChatChannel {
	t.Helper()
	a, b := from.Self().ID, to.Self().ID
	require.Eventually(t, func() bool { return from.Presence.IsConnected(b) }, wait, tick)
	ch, err := from.Channels.OpenTextChannel(context.Background(), domain.PrivateChannelID(a, b), to.Self().Name, a, []domain.PlayerID{a, b})
	require.NoError(t, err)
	return ch
}

// joined reports when c has finished entering a call on text channel ch.
func joined(c *Client, ch domain.ChannelID) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	cancel := events.Subscribe(c.Bus, func(ev events.CallAffordance) {
		if ev.TextChannelID == ch && ev.State == events.AffordanceInCall {
			once.Do(func() { close(done) })
		}
	})
	go func() {
		<-done
		cancel()
	}()
	return done
}

func awaitJoined(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("call not joined")
	}
}

func TestStartJoinsGlobal(t *testing.T) {
	srv, url := newServer(t)
	alice := start(t, url, "alice", false)

	g := alice.Channels.GlobalChannel()
	require.NotNil(t, g)
	assert.True(t, alice.Channels.IsCurrentChannel(domain.GlobalVoiceChannelID))
	assert.True(t, alice.Channels.ChannelExists(domain.GlobalTextChannelID))
	assert.Equal(t, events.Idle, alice.Calls.State())

	require.Eventually(t, func() bool {
		_, ok := g.Participant(alice.Self().ID)
		return ok
	}, wait, tick)
	assert.Equal(t, domain.GlobalCall, srv.Calls.PlayerCall(alice.Self().ID))
}

func TestPrivateCallAcceptedAndHungUp(t *testing.T) {
	srv, url := newServer(t)
	alice := start(t, url, "alice", false)
	bob := start(t, url, "bob", true)
	a, b := alice.Self().ID, bob.Self().ID

	ch := privateChannel(t, alice, bob)
	callID := ch.ID.VoiceID()
	aliceIn, bobIn := joined(alice, ch.ID), joined(bob, ch.ID)
	require.NoError(t, alice.Calls.Initiate(context.Background(), ch))

	awaitJoined(t, aliceIn)
	awaitJoined(t, bobIn)
	assert.Equal(t, events.InCall, alice.Calls.State())
	assert.Equal(t, events.InCall, bob.Calls.State())
	require.Eventually(t, func() bool {
		call, ok := srv.Calls.Call(callID)
		return ok && call.HasParticipant(a) && call.HasParticipant(b)
	}, wait, tick)
	assert.True(t, alice.Channels.IsCurrentChannel(callID))
	assert.True(t, bob.Channels.IsCurrentChannel(callID))
	assert.True(t, bob.Link.Muted(domain.GlobalVoiceChannelID))

	require.NoError(t, alice.Calls.LeaveCall(context.Background()))
	assert.Equal(t, events.Idle, alice.Calls.State())
	assert.True(t, alice.Channels.IsCurrentChannel(domain.GlobalVoiceChannelID))
	assert.False(t, alice.Link.Muted(domain.GlobalVoiceChannelID))

	// bob follows once the server shows alice gone.
	require.Eventually(t, func() bool { return bob.Calls.State() == events.Idle }, wait, tick)
	require.Eventually(t, func() bool {
		_, ok := srv.Calls.Call(callID)
		return !ok
	}, wait, tick)
	require.Eventually(t, func() bool { return bob.Channels.IsCurrentChannel(domain.GlobalVoiceChannelID) }, wait, tick)
	assert.Equal(t, domain.GlobalCall, srv.Calls.PlayerCall(b))
}

func TestPrivateCallDeclined(t *testing.T) {
	srv, url := newServer(t)
	alice := start(t, url, "alice", false)
	bob := start(t, url, "bob", false)

	ch := privateChannel(t, alice, bob)
	callID := ch.ID.VoiceID()
	require.NoError(t, alice.Calls.Initiate(context.Background(), ch))
	assert.Equal(t, events.Calling, alice.Calls.State())

	require.Eventually(t, func() bool { return bob.Calls.State() == events.Ringing }, wait, tick)
	incoming, ok := bob.Calls.Incoming()
	require.True(t, ok)
	assert.Equal(t, alice.Self().ID, incoming.CallerID)

	require.NoError(t, bob.Calls.Decline(context.Background()))
	assert.Equal(t, events.Idle, bob.Calls.State())

	require.Eventually(t, func() bool { return alice.Calls.State() == events.Idle }, wait, tick)
	require.Eventually(t, func() bool {
		_, ok := srv.Calls.Call(callID)
		return !ok
	}, wait, tick)
}

func TestCallerCancels(t *testing.T) {
	_, url := newServer(t)
	alice := start(t, url, "alice", false)
	bob := start(t, url, "bob", false)

	ch := privateChannel(t, alice, bob)
	require.NoError(t, alice.Calls.Initiate(context.Background(), ch))
	require.Eventually(t, func() bool { return bob.Calls.State() == events.Ringing }, wait, tick)

	require.ErrorIs(t, bob.Calls.Cancel(context.Background()), domain.ErrPrecondition)
	require.NoError(t, alice.Calls.Cancel(context.Background()))
	require.Eventually(t, func() bool { return bob.Calls.State() == events.Idle }, wait, tick)
	_, ringing := bob.Calls.Incoming()
	assert.False(t, ringing)
}

func TestCalleeGoingOfflineEndsRinging(t *testing.T) {
	srv, url := newServer(t)
	alice := start(t, url, "alice", false)
	bob := start(t, url, "bob", false)

	ch := privateChannel(t, alice, bob)
	callID := ch.ID.VoiceID()
	require.NoError(t, alice.Calls.Initiate(context.Background(), ch))
	require.Eventually(t, func() bool { return bob.Calls.State() == events.Ringing }, wait, tick)

	bob.Close()
	require.Eventually(t, func() bool { return alice.Calls.State() == events.Idle }, wait, tick)
	require.Eventually(t, func() bool {
		_, ok := srv.Calls.Call(callID)
		return !ok
	}, wait, tick)
}
