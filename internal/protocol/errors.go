package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicesync/internal/domain"
)

const (
	CodePrecondition = "precondition"
	CodeCallExists   = "call_exists"
	CodeNotMember    = "not_member"
	CodeOffline      = "offline"
	CodeUnauthorized = "unauthorized"
	CodeRateLimited  = "rate_limited"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

var ErrRateLimited = errors.New("rate limited")

func CodeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrCallExists):
		return CodeCallExists
	case errors.Is(err, domain.ErrNotMember):
		return CodeNotMember
	case errors.Is(err, domain.ErrPlayerOffline):
		return CodeOffline
	case errors.Is(err, domain.ErrNotAuthenticated):
		return CodeUnauthorized
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrBadPayload):
		return CodeBadRequest
	case errors.Is(err, domain.ErrPrecondition), errors.Is(err, domain.ErrInvalidChannelID):
		return CodePrecondition
	}
	return CodeInternal
}

// ErrorOf turns a failed reply back into an error the caller can match.
// Anything the server did not classify is a transport failure.
func ErrorOf(env Envelope) error {
	if env.Error == "" && env.Code == "" {
		return nil
	}
	var base error
	switch env.Code {
	case CodeCallExists:
		base = domain.ErrCallExists
	case CodeNotMember:
		base = domain.ErrNotMember
	case CodePrecondition, CodeBadRequest:
		base = domain.ErrPrecondition
	case CodeUnauthorized:
		base = domain.ErrNotAuthenticated
	case CodeOffline:
		base = domain.ErrPlayerOffline
	default:
		base = domain.ErrTransport
	}
	return fmt.Errorf("%w: %s", base, env.Error)
}
