// Package server assembles the signaling server from its parts.
package server

import (
	"context"
	"net/http"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/voicesync/internal/adapters/http"
	sigctl "github.com/dkeye/voicesync/internal/adapters/signal"
	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/app/orch"
	"github.com/dkeye/voicesync/internal/auth"
	"github.com/dkeye/voicesync/internal/config"
	"github.com/dkeye/voicesync/internal/storage"
)

type Server struct {
	Orch     *orch.Orchestrator
	Calls    *app.CallRegistry
	Presence *app.Presence
	History  *storage.CallLog
	Handler  http.Handler

	sweeper *cron.Cron
	closers []func()
}

// New builds the server. Work tied to ctx (websocket sessions, the history
// recorder) stops when ctx ends; Close releases the rest.
func New(ctx context.Context, cfg *config.Config) *Server {
	s := &Server{
		Calls:    app.NewCallRegistry(),
		Presence: app.NewPresence(),
	}
	s.Orch = &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
		Calls:    s.Calls,
		Presence: s.Presence,
	}
	notifier := &app.CallNotifier{Names: s.Presence, Sink: s.Orch}
	s.closers = append(s.closers, notifier.Attach(s.Calls.Calls()))

	if cfg.HistoryDB != "" {
		history, err := storage.Open(cfg.HistoryDB)
		if err != nil {
			log.Error().Err(err).Str("db", cfg.HistoryDB).Msg("call history disabled")
		} else {
			s.History = history
			rec := storage.NewRecorder(history, 0)
			s.closers = append(s.closers, rec.Attach(s.Calls.Calls()))
			go rec.Run(ctx)
		}
	}

	s.sweeper = cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	if _, err := s.sweeper.AddFunc(cfg.SweepSchedule, func() {
		s.Calls.SweepStale(cfg.RingTimeout)
	}); err != nil {
		log.Error().Err(err).Str("schedule", cfg.SweepSchedule).Msg("sweeper disabled")
	}
	s.sweeper.Start()

	ctl := sigctl.NewSignalWSController(s.Orch, sigctl.NewRateLimiter(cfg.SignalRateLimit, cfg.SignalRateInterval))
	ctl.ReadLimit = cfg.ReadLimit
	ctl.PingPeriod = cfg.PingPeriod
	ctl.SendBuffer = cfg.SendBuffer

	s.Handler = router.SetupRouter(ctx, cfg, router.Deps{
		Orch:    s.Orch,
		Signal:  ctl,
		Auth:    auth.NewIssuer(cfg.Secret, cfg.TokenTTL),
		History: s.History,
	})
	return s
}

func (s *Server) Close() {
	<-s.sweeper.Stop().Done()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			log.Warn().Err(err).Msg("close call history")
		}
	}
}
