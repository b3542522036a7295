package signal

import (
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleVoiceConnect(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.VoiceConnect
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("channel", string(p.Channel)).Msg("voice.connect")
	ctl.reply(conn, req, nil, ctl.Orch.JoinChannel(sid, p.Channel))
}

func (ctl *SignalWSController) handleVoiceDisconnect(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.VoiceChannel
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("channel", string(p.Channel)).Msg("voice.disconnect")
	ctl.Orch.LeaveChannel(sid, p.Channel)
	ctl.reply(conn, req, nil, nil)
}

func (ctl *SignalWSController) handleTextSend(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.TextSend
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	msg, err := ctl.Orch.SendText(sid, p.Channel, p.Body)
	if err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	ctl.reply(conn, req, protocol.TextMessage{Message: msg}, nil)
}

func (ctl *SignalWSController) handleTextDirect(sid core.SessionID, conn *WsSignalConn, req protocol.Envelope) {
	var p protocol.TextDirect
	if err := protocol.Bind(req, &p); err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	msg, err := ctl.Orch.SendDirect(sid, p.To, p.Body)
	if err != nil {
		ctl.reply(conn, req, nil, err)
		return
	}
	ctl.reply(conn, req, protocol.TextMessage{Message: msg}, nil)
}
