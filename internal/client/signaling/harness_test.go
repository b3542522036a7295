package signaling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/client/channels"
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/stretchr/testify/require"
)

// world is an in-process server: the real call registry, signals routed
// synchronously, and map updates queued per peer until settle.
type world struct {
	server *app.CallRegistry
	peers  map[domain.PlayerID]*peer
}

type peer struct {
	id       domain.PlayerID
	bus      *events.Bus
	session  *fakeSession
	tr       *fakeTransport
	mirror   *replica.Map[domain.ChannelID, domain.VoiceCall]
	channels *channels.Manager
	machine  *Machine

	mu    sync.Mutex
	inbox []mapUpdate
}

type mapUpdate struct {
	op   replica.Op
	id   domain.ChannelID
	call domain.VoiceCall
}

func newWorld() *world {
	return &world{server: app.NewCallRegistry(), peers: make(map[domain.PlayerID]*peer)}
}

func (w *world) join(t *testing.T, id domain.PlayerID) *peer {
	t.Helper()
	p := &peer{
		id:      id,
		bus:     events.NewBus(),
		session: &fakeSession{player: domain.Player{ID: id, Name: strings.ToUpper(string(id))}, state: domain.LoggedIn},
		tr:      newFakeTransport(id),
		mirror:  replica.NewMap[domain.ChannelID, domain.VoiceCall](),
	}
	reg := serverRegistry{r: w.server, self: id}
	p.channels = channels.NewManager(p.session, p.tr, reg, p.bus, nil)
	p.machine = NewMachine(Deps{
		Session:  p.session,
		Registry: reg,
		Lookup:   mirrorLookup{p.mirror},
		Signaler: &routedSignaler{w: w, from: id},
		Channels: p.channels,
		Bus:      p.bus,
	})
	t.Cleanup(w.server.Calls().Subscribe(func(op replica.Op, cid domain.ChannelID, call domain.VoiceCall) {
		p.mu.Lock()
		p.inbox = append(p.inbox, mapUpdate{op, cid, call})
		p.mu.Unlock()
	}))
	t.Cleanup(WatchCalls(p.mirror, p.bus))
	w.peers[id] = p

	require.NoError(t, p.channels.ConnectToGlobal(context.Background()))
	w.settle()
	return p
}

// settle delivers queued map updates until nothing is left, the way the link
// dispatcher would.
func (w *world) settle() {
	for {
		delivered := false
		for _, p := range w.peers {
			p.mu.Lock()
			batch := p.inbox
			p.inbox = nil
			p.mu.Unlock()
			for _, u := range batch {
				p.mirror.Apply(u.op, u.id, u.call)
				delivered = true
			}
		}
		if !delivered {
			return
		}
	}
}

type mirrorLookup struct {
	m *replica.Map[domain.ChannelID, domain.VoiceCall]
}

func (l mirrorLookup) Call(id domain.ChannelID) (domain.VoiceCall, bool) { return l.m.Get(id) }

// serverRegistry acts on the shared registry as player self.
type serverRegistry struct {
	r    *app.CallRegistry
	self domain.PlayerID
}

func (s serverRegistry) CreateCall(_ context.Context, id domain.ChannelID, members []domain.PlayerID) error {
	return s.r.CreateCall(id, s.self, members)
}

func (s serverRegistry) RemoveCall(_ context.Context, id domain.ChannelID) error {
	if caller, ok := s.r.Caller(id); ok && caller != s.self {
		return fmt.Errorf("%w: only %s removes %s", domain.ErrPrecondition, caller, id)
	}
	s.r.RemoveCall(id)
	return nil
}

func (s serverRegistry) AddParticipant(_ context.Context, id domain.ChannelID, pid domain.PlayerID) error {
	return s.r.AddParticipant(id, pid)
}

func (s serverRegistry) RemoveParticipant(_ context.Context, id domain.ChannelID, pid domain.PlayerID) error {
	s.r.RemoveParticipant(id, pid)
	return nil
}

type routedSignaler struct {
	w    *world
	from domain.PlayerID

	mu   sync.Mutex
	sent []string
}

func (s *routedSignaler) record(typ string, to domain.PlayerID) {
	s.mu.Lock()
	s.sent = append(s.sent, typ+">"+string(to))
	s.mu.Unlock()
}

func (s *routedSignaler) SendCallStarted(ctx context.Context, targets []domain.PlayerID, info domain.CallInfo) error {
	for _, to := range targets {
		s.record("started", to)
		if p, ok := s.w.peers[to]; ok {
			_ = p.machine.OnCallStarted(ctx, s.from, info)
		}
	}
	return nil
}

func (s *routedSignaler) SendCallCanceled(_ context.Context, targets []domain.PlayerID, info domain.CallInfo) error {
	for _, to := range targets {
		s.record("canceled", to)
		if p, ok := s.w.peers[to]; ok {
			p.machine.OnCallCanceled(info)
		}
	}
	return nil
}

func (s *routedSignaler) SendCallAccepted(ctx context.Context, caller domain.PlayerID, info domain.CallInfo) error {
	s.record("accepted", caller)
	if p, ok := s.w.peers[caller]; ok {
		return p.machine.OnCallAccepted(ctx, s.from, info)
	}
	return nil
}

func (s *routedSignaler) SendCallDeclined(ctx context.Context, caller domain.PlayerID, info domain.CallInfo) error {
	s.record("declined", caller)
	if p, ok := s.w.peers[caller]; ok {
		return p.machine.OnCallDeclined(ctx, s.from, info)
	}
	return nil
}

type fakeSession struct {
	player domain.Player
	state  domain.LoginState
}

func (s *fakeSession) LoginState() domain.LoginState { return s.state }
func (s *fakeSession) LocalPlayer() domain.Player    { return s.player }

type fakeTransport struct {
	self domain.Participant

	mu        sync.Mutex
	handlers  map[domain.ChannelID]core.ChannelHandler
	connected map[domain.ChannelID]bool
	muted     map[domain.ChannelID]bool
	fail      map[domain.ChannelID]error
	onConnect map[domain.ChannelID]func()
}

func newFakeTransport(id domain.PlayerID) *fakeTransport {
	return &fakeTransport{
		self:      domain.Participant{ID: id, DisplayName: strings.ToUpper(string(id))},
		handlers:  make(map[domain.ChannelID]core.ChannelHandler),
		connected: make(map[domain.ChannelID]bool),
		muted:     make(map[domain.ChannelID]bool),
		fail:      make(map[domain.ChannelID]error),
		onConnect: make(map[domain.ChannelID]func()),
	}
}

func (f *fakeTransport) Connect(_ context.Context, ch domain.ChannelID, _ domain.TransportKind, _ domain.ConnectFlags) error {
	f.mu.Lock()
	err := f.fail[ch]
	hook := f.onConnect[ch]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	f.connected[ch] = true
	h := f.handlers[ch]
	f.mu.Unlock()
	if h != nil {
		h.ParticipantJoined(ch, f.self)
	}
	return nil
}

func (f *fakeTransport) Disconnect(_ context.Context, ch domain.ChannelID) error {
	f.mu.Lock()
	delete(f.connected, ch)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Mute(ch domain.ChannelID, muted bool) {
	f.mu.Lock()
	f.muted[ch] = muted
	f.mu.Unlock()
}

func (f *fakeTransport) SendText(context.Context, domain.ChannelID, string) error { return nil }

func (f *fakeTransport) SendDirect(context.Context, domain.PlayerID, string) error { return nil }

func (f *fakeTransport) Subscribe(ch domain.ChannelID, h core.ChannelHandler) func() {
	f.mu.Lock()
	f.handlers[ch] = h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		if f.handlers[ch] == h {
			delete(f.handlers, ch)
		}
		f.mu.Unlock()
	}
}

func (f *fakeTransport) SubscribeDirect(func(domain.ChatMessage)) func() { return func() {} }

func (f *fakeTransport) isConnected(ch domain.ChannelID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[ch]
}

func (f *fakeTransport) isMuted(ch domain.ChannelID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted[ch]
}

// record collects every event of type E published on bus.
func record[E any](t *testing.T, bus *events.Bus) *[]E {
	t.Helper()
	var mu sync.Mutex
	out := &[]E{}
	t.Cleanup(events.Subscribe(bus, func(e E) {
		mu.Lock()
		*out = append(*out, e)
		mu.Unlock()
	}))
	return out
}
