package app

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session  core.MemberSession
	Cancel   context.CancelFunc
	Channels []domain.ChannelID
}

// Registry tracks the live signaling sessions and which channel sessions
// each of them has joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// BindSignal registers sess. A previous session of the same sid is returned
// so the caller can cancel it.
func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) (prev core.MemberSession, prevCancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sid]; ok {
		prev, prevCancel = old.Session, old.Cancel
	}
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
	return prev, prevCancel
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind removes sid only while it still maps to sess, so a stale connection
// closing late does not drop its replacement.
func (r *Registry) Unbind(sid core.SessionID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) ChannelsOf(sid core.SessionID) []domain.ChannelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return slices.Clone(e.Channels)
	}
	return nil
}

func (r *Registry) AddChannel(sid core.SessionID, ch domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if !slices.Contains(e.Channels, ch) {
		e.Channels = append(e.Channels, ch)
	}
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("channel", string(ch)).Msg("joined channel")
	return true
}

func (r *Registry) RemoveChannel(sid core.SessionID, ch domain.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.Channels = slices.DeleteFunc(e.Channels, func(c domain.ChannelID) bool { return c == ch })
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
