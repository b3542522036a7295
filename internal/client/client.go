// Package client assembles a headless voicesync client: the signaling link,
// presence, channels and the call state machine.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/voicesync/internal/adapters/link"
	"github.com/dkeye/voicesync/internal/client/channels"
	"github.com/dkeye/voicesync/internal/client/presence"
	"github.com/dkeye/voicesync/internal/client/signaling"
	"github.com/dkeye/voicesync/internal/config"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/events"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Client struct {
	Link     *link.Link
	Bus      *events.Bus
	Presence *presence.Tracker
	Channels *channels.Manager
	Calls    *signaling.Machine

	cfg     config.ClientConfig
	http    *http.Client
	cancels []func()
}

func New(cfg config.ClientConfig) *Client {
	l := link.New(cfg.RequestTimeout)
	bus := events.NewBus()
	tracker := presence.NewTracker(l.Players, bus)
	mgr := channels.NewManager(l, l, l, bus, tracker)
	machine := signaling.NewMachine(signaling.Deps{
		Session:  l,
		Registry: l,
		Lookup:   l,
		Signaler: l,
		Channels: mgr,
		Bus:      bus,
		Timeout:  cfg.RequestTimeout,
	})
	c := &Client{
		Link:     l,
		Bus:      bus,
		Presence: tracker,
		Channels: mgr,
		Calls:    machine,
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
	}
	l.OnSignal(c.onSignal)
	l.OnNotification(mgr.Notify)
	return c
}

// Start logs in, opens the signaling link and joins the global channel.
func (c *Client) Start(ctx context.Context) error {
	player, token, err := link.Login(ctx, c.http, c.cfg.ServerURL, c.cfg.Name, c.cfg.Bot)
	if err != nil {
		return err
	}
	log.Info().Str("module", "client").Str("player", string(player.ID)).Str("name", player.Name).Msg("token issued")

	if err := c.Link.Dial(ctx, c.cfg.ServerURL, token); err != nil {
		return err
	}
	c.Presence.Start()
	c.cancels = append(c.cancels, c.Presence.Stop, signaling.WatchCalls(c.Link.Calls, c.Bus))
	if c.cfg.AutoAccept {
		c.cancels = append(c.cancels, events.Subscribe(c.Bus, c.autoAccept))
	}
	return c.Channels.ConnectToGlobal(ctx)
}

func (c *Client) Close() {
	for i := len(c.cancels) - 1; i >= 0; i-- {
		c.cancels[i]()
	}
	c.cancels = nil
	c.Channels.Close()
	c.Link.Close()
}

// Done is closed when the link to the server is lost.
func (c *Client) Done() <-chan struct{} { return c.Link.Done() }

func (c *Client) Self() domain.Player { return c.Link.LocalPlayer() }

func (c *Client) onSignal(typ string, from domain.PlayerID, sig protocol.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	var err error
	switch typ {
	case protocol.TypeCallStarted:
		err = c.Calls.OnCallStarted(ctx, from, sig.Info)
	case protocol.TypeCallCanceled:
		c.Calls.OnCallCanceled(sig.Info)
	case protocol.TypeCallAccepted:
		err = c.Calls.OnCallAccepted(ctx, from, sig.Info)
	case protocol.TypeCallDeclined:
		err = c.Calls.OnCallDeclined(ctx, from, sig.Info)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("type", typ).Str("from", string(from)).Msg("signal")
	}
}

// autoAccept answers incoming calls off the dispatcher so the join can make
// progress while the link keeps delivering.
func (c *Client) autoAccept(ev events.IncomingCall) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
		defer cancel()
		if err := c.Calls.Accept(ctx); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("call", string(ev.Info.ChannelID)).Msg("auto accept")
		}
	}()
}

func (c *Client) timeout() time.Duration {
	if c.cfg.RequestTimeout > 0 {
		return c.cfg.RequestTimeout
	}
	return 10 * time.Second
}
