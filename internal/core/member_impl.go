package core

import "github.com/dkeye/voicesync/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	player domain.Player
	conn   SignalConnection
}

func NewMemberSession(player domain.Player, conn SignalConnection) MemberSession {
	return &memberSession{player: player, conn: conn}
}

func (m *memberSession) Player() domain.Player    { return m.player }
func (m *memberSession) Signal() SignalConnection { return m.conn }
