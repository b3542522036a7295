package orch

import (
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards a call signal from sid to each online target. The sender is
// never a recipient and offline targets are skipped. Returns the number of
// targets reached.
func (o *Orchestrator) Relay(sid core.SessionID, typ string, sig protocol.Signal) int {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return 0
	}
	from := sess.Player().ID
	env, err := protocol.NewEvent(typ, sig)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", typ).Msg("encode signal")
		return 0
	}
	env.From = from

	sent := 0
	for _, target := range sig.Targets {
		if target == from {
			continue
		}
		ts, ok := o.Registry.GetSession(core.SessionOf(target))
		if !ok {
			log.Debug().Str("module", "orch").Str("type", typ).Str("target", string(target)).Msg("signal target offline")
			continue
		}
		if err := o.send(ts, env); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("type", typ).Str("target", string(target)).Msg("signal dropped")
			continue
		}
		sent++
	}
	log.Info().Str("module", "orch").Str("type", typ).Str("from", string(from)).Int("sent", sent).Msg("signal relayed")
	return sent
}
