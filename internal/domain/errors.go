package domain

import "errors"

// Errors returned by the call and channel layers.
// Callers match with errors.Is; details are wrapped with fmt.Errorf("%w: ...").
var (
	ErrPrecondition     = errors.New("precondition violated")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTransport        = errors.New("transport failure")

	ErrCallExists       = errors.New("call already exists")
	ErrCallNotFound     = errors.New("call not found")
	ErrNotMember        = errors.New("player is not a call member")
	ErrCallSuperseded   = errors.New("call superseded while connecting")
	ErrInvalidChannelID = errors.New("invalid channel id")
	ErrChannelNotJoined = errors.New("channel not joined")
	ErrPlayerOffline    = errors.New("player offline")
)
