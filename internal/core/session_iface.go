package core

import "github.com/dkeye/voicesync/internal/domain"

// SessionID identifies one signaling connection. A player holds at most one.
type SessionID string

func SessionOf(id domain.PlayerID) SessionID { return SessionID(id) }

// MemberSession binds a player and its transport endpoint.
// This is what a channel session stores and fans out to.
type MemberSession interface {
	Player() domain.Player
	Signal() SignalConnection
}
