package signal

import (
	"context"
	"time"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
	}()

	if ctl.PingPeriod > 0 {
		wait := ctl.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case protocol.TypeCallCreate:
		ctl.handleCallCreate(sid, c, env)
	case protocol.TypeCallRemove:
		ctl.handleCallRemove(sid, c, env)
	case protocol.TypeCallAddParticipant:
		ctl.handleAddParticipant(sid, c, env)
	case protocol.TypeCallRemoveParticipant:
		ctl.handleRemoveParticipant(sid, c, env)
	case protocol.TypeCallStarted, protocol.TypeCallCanceled, protocol.TypeCallAccepted, protocol.TypeCallDeclined:
		ctl.handleCallSignal(sid, c, env)
	case protocol.TypeVoiceConnect:
		ctl.handleVoiceConnect(sid, c, env)
	case protocol.TypeVoiceDisconnect:
		ctl.handleVoiceDisconnect(sid, c, env)
	case protocol.TypeTextSend:
		ctl.handleTextSend(sid, c, env)
	case protocol.TypeTextDirect:
		ctl.handleTextDirect(sid, c, env)
	case protocol.TypePing:
		ctl.handlePing(c, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.reply(c, env, nil, protocol.ErrBadPayload)
	}
}

func (ctl *SignalWSController) send(c *WsSignalConn, env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", env.Type).Msg("send dropped")
	}
}

// reply answers a request. Requests without an id expect no answer.
func (ctl *SignalWSController) reply(c *WsSignalConn, req protocol.Envelope, data any, err error) {
	if req.ID == "" {
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("type", req.Type).Msg("request failed")
		}
		return
	}
	env, mErr := protocol.NewReply(req.ID, data, err)
	if mErr != nil {
		log.Error().Err(mErr).Str("module", "signal").Msg("reply marshal")
		return
	}
	ctl.send(c, env)
}
