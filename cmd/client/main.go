package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicesync/internal/client"
	"github.com/dkeye/voicesync/internal/config"
	"github.com/dkeye/voicesync/internal/events"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load client config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	c := client.New(*cfg)
	defer c.Close()

	events.Subscribe(c.Bus, func(e events.CallStateChanged) {
		log.Info().Str("from", e.From.String()).Str("to", e.To.String()).Str("channel", string(e.Channel)).Msg("call state")
	})
	events.Subscribe(c.Bus, func(e events.MessageReceived) {
		log.Info().Str("channel", string(e.Message.ChannelID)).Str("from", e.Message.SenderName).Str("body", e.Message.Body).Msg("message")
	})
	events.Subscribe(c.Bus, func(e events.PlayerConnected) {
		log.Info().Str("player", string(e.ID)).Str("name", e.Info.Name).Msg("player online")
	})
	events.Subscribe(c.Bus, func(e events.PlayerDisconnected) {
		log.Info().Str("player", string(e.ID)).Msg("player offline")
	})

	if err := c.Start(ctx); err != nil {
		log.Fatal().Err(err).Str("server", cfg.ServerURL).Msg("client start failed")
	}
	log.Info().Str("player", string(c.Self().ID)).Str("server", cfg.ServerURL).Msg("voicesync client running")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case <-c.Done():
		log.Warn().Msg("connection to server lost")
	}
}
