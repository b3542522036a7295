package app

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/replica"
	"github.com/rs/zerolog/log"
)

// CallRegistry owns the replicated call map and the player -> call map.
// It is the only writer of both; every operation holds the call's lock.
type CallRegistry struct {
	calls   *replica.Map[domain.ChannelID, domain.VoiceCall]
	players *replica.Map[domain.PlayerID, domain.CallRef]
	locks   keyedMutex[domain.ChannelID]

	mu      sync.Mutex
	created map[domain.ChannelID]time.Time
	callers map[domain.ChannelID]domain.PlayerID
	now     func() time.Time
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		calls:   replica.NewMap[domain.ChannelID, domain.VoiceCall](),
		players: replica.NewMap[domain.PlayerID, domain.CallRef](),
		created: make(map[domain.ChannelID]time.Time),
		callers: make(map[domain.ChannelID]domain.PlayerID),
		now:     time.Now,
	}
}

func (r *CallRegistry) Calls() *replica.Map[domain.ChannelID, domain.VoiceCall] { return r.calls }

func (r *CallRegistry) PlayerCalls() *replica.Map[domain.PlayerID, domain.CallRef] {
	return r.players
}

// CreateCall registers call id placed by caller, who must be one of members.
func (r *CallRegistry) CreateCall(id domain.ChannelID, caller domain.PlayerID, members []domain.PlayerID) error {
	if !id.Valid() || id.IsGlobal() {
		return fmt.Errorf("%w: cannot create call %q", domain.ErrPrecondition, id)
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: call %s has no members", domain.ErrPrecondition, id)
	}
	if !slices.Contains(members, caller) {
		return fmt.Errorf("%w: caller %s of %s", domain.ErrNotMember, caller, id)
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	if err := r.calls.Add(id, domain.NewVoiceCall(id, members)); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrCallExists, id)
	}
	r.mu.Lock()
	r.created[id] = r.now()
	r.callers[id] = caller
	r.mu.Unlock()
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("caller", string(caller)).Int("members", len(members)).Msg("call created")
	return nil
}

// RemoveCall is unconditional; removing an absent call does nothing.
func (r *CallRegistry) RemoveCall(id domain.ChannelID) {
	unlock := r.locks.Lock(id)
	defer unlock()
	r.removeLocked(id)
}

func (r *CallRegistry) removeLocked(id domain.ChannelID) {
	call, ok := r.calls.Remove(id)
	r.mu.Lock()
	delete(r.created, id)
	delete(r.callers, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, p := range call.Participants {
		r.releasePlayer(p, id)
	}
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("call removed")
}

// AddParticipant joins pid to call id. An absent call is a stale reference
// and a no-op, as is a repeated join. The call pid is live in is left only
// once the join is known to go ahead.
func (r *CallRegistry) AddParticipant(id domain.ChannelID, pid domain.PlayerID) error {
	if join, err := r.checkJoin(id, pid); !join {
		return err
	}
	if ref, ok := r.players.Get(pid); ok && !ref.IsGlobal() && ref.ID != id {
		r.RemoveParticipant(ref.ID, pid)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	call, ok := r.calls.Get(id)
	if !ok {
		log.Debug().Str("module", "app.calls").Str("call", string(id)).Str("player", string(pid)).Msg("add participant: call ended meanwhile")
		return nil
	}
	if call.HasParticipant(pid) {
		return nil
	}
	r.calls.Set(id, call.WithParticipant(pid))
	r.players.Set(pid, domain.InCall(id))
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("player", string(pid)).Msg("participant added")
	return nil
}

func (r *CallRegistry) checkJoin(id domain.ChannelID, pid domain.PlayerID) (bool, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	call, ok := r.calls.Get(id)
	switch {
	case !ok:
		log.Debug().Str("module", "app.calls").Str("call", string(id)).Str("player", string(pid)).Msg("add participant: no such call")
		return false, nil
	case !call.IsMember(pid):
		return false, fmt.Errorf("%w: %s in %s", domain.ErrNotMember, pid, id)
	case call.HasParticipant(pid):
		return false, nil
	}
	return true, nil
}

// RemoveParticipant drops pid from call id and deletes the call once nobody
// is left in it.
func (r *CallRegistry) RemoveParticipant(id domain.ChannelID, pid domain.PlayerID) {
	unlock := r.locks.Lock(id)
	defer unlock()

	call, ok := r.calls.Get(id)
	if !ok || !call.HasParticipant(pid) {
		return
	}
	next := call.WithoutParticipant(pid)
	r.calls.Set(id, next)
	r.releasePlayer(pid, id)
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("player", string(pid)).Msg("participant removed")

	if next.Empty() {
		r.removeLocked(id)
	}
}

func (r *CallRegistry) releasePlayer(pid domain.PlayerID, id domain.ChannelID) {
	if ref, ok := r.players.Get(pid); ok && ref.ID == id {
		r.players.Set(pid, domain.GlobalCall)
	}
}

func (r *CallRegistry) AddPlayer(pid domain.PlayerID) {
	if _, ok := r.players.Get(pid); ok {
		return
	}
	r.players.Set(pid, domain.GlobalCall)
}

// RemovePlayer forgets pid and takes it out of any call it was in.
func (r *CallRegistry) RemovePlayer(pid domain.PlayerID) {
	if ref, ok := r.players.Get(pid); ok && !ref.IsGlobal() {
		r.RemoveParticipant(ref.ID, pid)
	}
	r.players.Remove(pid)
}

func (r *CallRegistry) Call(id domain.ChannelID) (domain.VoiceCall, bool) {
	return r.calls.Get(id)
}

// Caller returns the player that placed call id.
func (r *CallRegistry) Caller(id domain.ChannelID) (domain.PlayerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.callers[id]
	return p, ok
}

func (r *CallRegistry) PlayerCall(pid domain.PlayerID) domain.CallRef {
	if ref, ok := r.players.Get(pid); ok {
		return ref
	}
	return domain.GlobalCall
}

func (r *CallRegistry) List() []domain.VoiceCall {
	snap := r.calls.Snapshot()
	out := make([]domain.VoiceCall, 0, len(snap))
	for _, c := range snap {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.VoiceCall) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// SweepStale removes calls nobody joined within maxAge of creation.
func (r *CallRegistry) SweepStale(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)
	r.mu.Lock()
	var stale []domain.ChannelID
	for id, at := range r.created {
		if at.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, id := range stale {
		unlock := r.locks.Lock(id)
		if call, ok := r.calls.Get(id); ok && call.Empty() {
			r.removeLocked(id)
			removed++
		} else if ok {
			r.mu.Lock()
			delete(r.created, id)
			r.mu.Unlock()
		}
		unlock()
	}
	if removed > 0 {
		log.Info().Str("module", "app.calls").Int("removed", removed).Msg("swept unanswered calls")
	}
	return removed
}
