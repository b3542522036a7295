package domain

import "sync"

// MaxMessages bounds a channel's history. Older messages are evicted first.
const MaxMessages = 100

// History is a fixed-capacity message log. When full, Append overwrites the
// oldest entry. Safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	buf   []ChatMessage
	head  int
	count int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = MaxMessages
	}
	return &History{buf: make([]ChatMessage, capacity)}
}

func (h *History) Append(m ChatMessage) {
	h.mu.Lock()
	idx := (h.head + h.count) % len(h.buf)
	h.buf[idx] = m
	if h.count == len(h.buf) {
		h.head = (h.head + 1) % len(h.buf)
	} else {
		h.count++
	}
	h.mu.Unlock()
}

// Snapshot returns the messages oldest first.
func (h *History) Snapshot() []ChatMessage {
	h.mu.RLock()
	out := make([]ChatMessage, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	h.mu.RUnlock()
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	n := h.count
	h.mu.RUnlock()
	return n
}
