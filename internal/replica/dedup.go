package replica

import (
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
)

// Filter drops a notification identical to the one immediately before it.
// It is not a window: a repeat separated by any other notification passes.
type Filter[T comparable] struct {
	mu   sync.Mutex
	last T
	seen bool
}

// Pass reports whether t differs from the previous tuple, and remembers it.
func (f *Filter[T]) Pass(t T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen && f.last == t {
		return false
	}
	f.last = t
	f.seen = true
	return true
}

// Dedup wraps next so that exact repeats, as keyed by key, are discarded.
func Dedup[K comparable, V any, T comparable](f *Filter[T], key func(Op, K, V) T, next Handler[K, V]) Handler[K, V] {
	return func(op Op, k K, v V) {
		if !f.Pass(key(op, k, v)) {
			return
		}
		next(op, k, v)
	}
}

// CallbackInfo identifies a call map notification.
type CallbackInfo struct {
	ChannelID     domain.ChannelID
	Op            Op
	ParticipantID domain.PlayerID
	Add           bool
}

func CallKey(op Op, id domain.ChannelID, call domain.VoiceCall) CallbackInfo {
	return CallbackInfo{
		ChannelID:     id,
		Op:            op,
		ParticipantID: call.LastModifiedID,
		Add:           call.LastOperationWasAdd,
	}
}

// PresenceInfo identifies a presence map notification.
type PresenceInfo struct {
	Op     Op
	Player domain.PlayerID
	Info   domain.PlayerInfo
}

func PresenceKey(op Op, id domain.PlayerID, info domain.PlayerInfo) PresenceInfo {
	return PresenceInfo{Op: op, Player: id, Info: info}
}
