// Package link is the client end of the signaling websocket. It implements
// the client ports (call registry, signaler, voice transport, session) and
// keeps the local mirrors of the replicated maps.
package link

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("link closed")

// SignalHandler receives a call signal relayed by the server.
type SignalHandler func(typ string, from domain.PlayerID, sig protocol.Signal)

type channelSub struct {
	id uint64
	h  core.ChannelHandler
}

type directSub struct {
	id uint64
	fn func(domain.ChatMessage)
}

type Link struct {
	Calls       *replica.Map[domain.ChannelID, domain.VoiceCall]
	PlayerCalls *replica.Map[domain.PlayerID, domain.CallRef]
	Players     *replica.Map[domain.PlayerID, domain.PlayerInfo]

	timeout time.Duration
	state   atomic.Int32

	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	self     domain.Player
	pending  map[string]chan protocol.Envelope
	channels map[domain.ChannelID][]channelSub
	direct   []directSub
	nextSub  uint64
	muted    map[domain.ChannelID]bool
	onSignal SignalHandler
	onNotify func(domain.ChatMessage)

	inbox    []protocol.Envelope
	wake     chan struct{}
	welcomed chan struct{}
	done     chan struct{}
	once     sync.Once
}

func New(timeout time.Duration) *Link {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Link{
		Calls:       replica.NewMap[domain.ChannelID, domain.VoiceCall](),
		PlayerCalls: replica.NewMap[domain.PlayerID, domain.CallRef](),
		Players:     replica.NewMap[domain.PlayerID, domain.PlayerInfo](),
		timeout:     timeout,
		send:        make(chan []byte, 64),
		pending:     make(map[string]chan protocol.Envelope),
		channels:    make(map[domain.ChannelID][]channelSub),
		muted:       make(map[domain.ChannelID]bool),
		wake:        make(chan struct{}, 1),
		welcomed:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// OnSignal sets the receiver of relayed call signals. Set before Dial.
func (l *Link) OnSignal(h SignalHandler) {
	l.mu.Lock()
	l.onSignal = h
	l.mu.Unlock()
}

// OnNotification sets the receiver of server call notifications.
func (l *Link) OnNotification(fn func(domain.ChatMessage)) {
	l.mu.Lock()
	l.onNotify = fn
	l.mu.Unlock()
}

// Dial opens the signaling socket at serverURL with token and blocks until
// the server has welcomed the player.
func (l *Link) Dial(ctx context.Context, serverURL, token string) error {
	l.state.Store(int32(domain.LoggingIn))
	u, err := wsURL(serverURL, token)
	if err != nil {
		l.state.Store(int32(domain.LoggedOut))
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		l.state.Store(int32(domain.LoggedOut))
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
		}
		return fmt.Errorf("%w: dial: %v", domain.ErrTransport, err)
	}
	l.conn = conn

	go l.writePump()
	go l.readPump()
	go l.dispatchLoop()

	select {
	case <-l.welcomed:
		l.state.Store(int32(domain.LoggedIn))
		log.Info().Str("module", "adapters.link").Str("player", string(l.LocalPlayer().ID)).Msg("logged in")
		return nil
	case <-l.done:
		l.state.Store(int32(domain.LoggedOut))
		return fmt.Errorf("%w: closed before welcome", domain.ErrTransport)
	case <-ctx.Done():
		l.Close()
		return fmt.Errorf("%w: %v", domain.ErrTransport, ctx.Err())
	}
}

func wsURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/signal"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Close logs out and stops every pump. Pending requests fail with ErrTransport.
func (l *Link) Close() {
	l.once.Do(func() {
		l.state.Store(int32(domain.LoggingOut))
		close(l.done)
		if l.conn != nil {
			_ = l.conn.Close()
		}
		l.state.Store(int32(domain.LoggedOut))
		log.Info().Str("module", "adapters.link").Msg("link closed")
	})
}

// Done is closed once the link is down.
func (l *Link) Done() <-chan struct{} { return l.done }

func (l *Link) LoginState() domain.LoginState { return domain.LoginState(l.state.Load()) }

func (l *Link) LocalPlayer() domain.Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.self
}

func (l *Link) writePump() {
	for {
		select {
		case <-l.done:
			return
		case data := <-l.send:
			if err := l.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.link").Msg("writePump set deadline")
				l.Close()
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.link").Msg("writePump write error")
				l.Close()
				return
			}
		}
	}
}

// readPump resolves replies itself and queues everything else for the
// dispatcher, so a handler blocked on a request never stalls the reply.
func (l *Link) readPump() {
	defer l.Close()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				log.Warn().Err(err).Str("module", "adapters.link").Msg("readPump read error")
			}
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.link").Msg("bad json")
			continue
		}
		switch env.Type {
		case protocol.TypeReply:
			l.resolve(env)
		case protocol.TypeWelcome:
			var w protocol.Welcome
			if err := protocol.Bind(env, &w); err != nil {
				log.Error().Err(err).Str("module", "adapters.link").Msg("bad welcome")
				return
			}
			l.mu.Lock()
			l.self = w.Player
			l.mu.Unlock()
			close(l.welcomed)
		default:
			l.enqueue(env)
		}
	}
}

func (l *Link) resolve(env protocol.Envelope) {
	l.mu.Lock()
	ch, ok := l.pending[env.ReplyTo]
	delete(l.pending, env.ReplyTo)
	l.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "adapters.link").Str("reply_to", env.ReplyTo).Msg("reply without request")
		return
	}
	ch <- env
}

func (l *Link) enqueue(env protocol.Envelope) {
	l.mu.Lock()
	l.inbox = append(l.inbox, env)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// request sends a request and waits for its reply. Without a deadline on ctx
// the link's timeout applies.
func (l *Link) request(ctx context.Context, typ string, data any) (protocol.Envelope, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	env, err := protocol.NewRequest(typ, data)
	if err != nil {
		return env, err
	}
	b, err := protocol.Encode(env)
	if err != nil {
		return env, err
	}

	wait := make(chan protocol.Envelope, 1)
	l.mu.Lock()
	l.pending[env.ID] = wait
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, env.ID)
		l.mu.Unlock()
	}()

	select {
	case l.send <- b:
	case <-l.done:
		return env, fmt.Errorf("%w: %s: %v", domain.ErrTransport, typ, ErrClosed)
	case <-ctx.Done():
		return env, fmt.Errorf("%w: %s: %v", domain.ErrTransport, typ, ctx.Err())
	}

	select {
	case rep := <-wait:
		if err := protocol.ErrorOf(rep); err != nil {
			return rep, err
		}
		return rep, nil
	case <-l.done:
		return env, fmt.Errorf("%w: %s: %v", domain.ErrTransport, typ, ErrClosed)
	case <-ctx.Done():
		return env, fmt.Errorf("%w: %s: %v", domain.ErrTransport, typ, ctx.Err())
	}
}

// Ping round-trips a request through the server.
func (l *Link) Ping(ctx context.Context) error {
	_, err := l.request(ctx, protocol.TypePing, nil)
	return err
}
