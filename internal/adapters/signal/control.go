package signal

import "github.com/dkeye/voicesync/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
	req protocol.Envelope,
) {
	if req.ID != "" {
		ctl.reply(conn, req, nil, nil)
		return
	}
	ctl.send(conn, protocol.Envelope{Type: protocol.TypePong})
}
