package signal

import (
	"sync"
	"time"

	"github.com/dkeye/voicesync/internal/domain"
)

// RateLimiter allows at most limit attempts per player within interval.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.PlayerID][]time.Time
	limit    int
	interval time.Duration
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.PlayerID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RateLimiter) Allow(id domain.PlayerID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]

	// Drop attempts outside the window.
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh

	return true
}

// Forget drops the history of a disconnected player.
func (rl *RateLimiter) Forget(id domain.PlayerID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
