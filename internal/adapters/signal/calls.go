package signal

import (
	"fmt"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleCallCreate(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.CallCreate
	if err := protocol.Bind(req, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call.create payload")
		ctl.reply(conn, req, nil, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("call", string(p.ID)).Msg("call.create")
	ctl.reply(conn, req, nil, ctl.Orch.Calls.CreateCall(p.ID, domain.PlayerID(sid), p.Members))
}

func (ctl *SignalWSController) handleCallRemove(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.CallID
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	// Only the caller tears a call down; everyone else leaves it.
	if caller, ok := ctl.Orch.Calls.Caller(p.ID); ok && caller != domain.PlayerID(sid) {
		ctl.reply(conn, req, nil, fmt.Errorf("%w: only %s removes %s", domain.ErrPrecondition, caller, p.ID))
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("call", string(p.ID)).Msg("call.remove")
	ctl.Orch.Calls.RemoveCall(p.ID)
	ctl.reply(conn, req, nil, nil)
}

func (ctl *SignalWSController) handleAddParticipant(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.CallParticipant
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	if p.Player != domain.PlayerID(sid) {
		ctl.reply(conn, req, nil, fmt.Errorf("%w: players only join themselves", domain.ErrPrecondition))
		return
	}
	ctl.reply(conn, req, nil, ctl.Orch.Calls.AddParticipant(p.ID, p.Player))
}

func (ctl *SignalWSController) handleRemoveParticipant(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.CallParticipant
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	if p.Player != domain.PlayerID(sid) {
		ctl.reply(conn, req, nil, fmt.Errorf("%w: players only leave themselves", domain.ErrPrecondition))
		return
	}
	ctl.Orch.Calls.RemoveParticipant(p.ID, p.Player)
	ctl.reply(conn, req, nil, nil)
}

func (ctl *SignalWSController) handleCallSignal(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.Signal
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	if req.Type == protocol.TypeCallStarted && ctl.Limiter != nil && !ctl.Limiter.Allow(domain.PlayerID(sid)) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("call_started rate limited")
		ctl.reply(conn, req, nil, protocol.ErrRateLimited)
		return
	}
	sent := ctl.Orch.Relay(sid, req.Type, p)
	ctl.reply(conn, req, map[string]int{"delivered": sent}, nil)
}
