// Package replica implements the server-owned replicated map and the
// client-side duplicate filter that sits in front of its subscribers.
package replica

import (
	"errors"
	"fmt"
	"sync"
)

var ErrKeyExists = errors.New("key already exists")

type Op int

const (
	OpAdd Op = iota
	OpRemove
	OpSet
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpSet:
		return "set"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

func ParseOp(s string) (Op, error) {
	switch s {
	case "add":
		return OpAdd, nil
	case "remove":
		return OpRemove, nil
	case "set":
		return OpSet, nil
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// Handler receives one notification. For OpRemove value is the removed entry.
type Handler[K comparable, V any] func(op Op, key K, value V)

type event[K comparable, V any] struct {
	op    Op
	key   K
	value V
	// target limits delivery to one subscriber; zero means everyone.
	target uint64
}

// Map is a key/value store whose mutations are published to every subscriber.
//
// Notifications are queued and drained by whichever caller is publishing, so
// they reach each subscriber in mutation order even when a handler mutates the
// map itself. A mutation racing a new subscription can be seen twice by that
// subscriber: once in the initial sync and once as the live event.
type Map[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]V
	subs     map[uint64]Handler[K, V]
	order    []uint64
	nextID   uint64
	queue    []event[K, V]
	draining bool
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		entries: make(map[K]V),
		subs:    make(map[uint64]Handler[K, V]),
	}
}

// Add inserts a new entry. It fails when key is present.
func (m *Map[K, V]) Add(key K, value V) error {
	m.mu.Lock()
	if _, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrKeyExists, key)
	}
	m.entries[key] = value
	m.enqueue(event[K, V]{op: OpAdd, key: key, value: value})
	m.mu.Unlock()
	m.drain()
	return nil
}

// Set replaces the whole value of key, inserting it when absent.
func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	op := OpSet
	if _, ok := m.entries[key]; !ok {
		op = OpAdd
	}
	m.entries[key] = value
	m.enqueue(event[K, V]{op: op, key: key, value: value})
	m.mu.Unlock()
	m.drain()
}

// Remove deletes key. Removing an absent key publishes nothing.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	m.mu.Lock()
	old, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
		m.enqueue(event[K, V]{op: OpRemove, key: key, value: old})
	}
	m.mu.Unlock()
	if ok {
		m.drain()
	}
	return old, ok
}

// Apply mirrors a notification received from the authoritative side.
func (m *Map[K, V]) Apply(op Op, key K, value V) {
	m.mu.Lock()
	switch op {
	case OpRemove:
		if old, ok := m.entries[key]; ok {
			delete(m.entries, key)
			value = old
		}
	default:
		m.entries[key] = value
	}
	m.enqueue(event[K, V]{op: op, key: key, value: value})
	m.mu.Unlock()
	m.drain()
}

// Redeliver publishes the current value of key again as OpSet.
func (m *Map[K, V]) Redeliver(key K) bool {
	m.mu.Lock()
	v, ok := m.entries[key]
	if ok {
		m.enqueue(event[K, V]{op: OpSet, key: key, value: v})
	}
	m.mu.Unlock()
	if ok {
		m.drain()
	}
	return ok
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Map[K, V]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]K, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out
}

func (m *Map[K, V]) Snapshot() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[K]V, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Subscribe registers h and replays every current entry to it as OpAdd.
// The returned func cancels the subscription; it is safe to call twice.
func (m *Map[K, V]) Subscribe(h Handler[K, V]) (cancel func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = h
	m.order = append(m.order, id)
	for k, v := range m.entries {
		m.enqueue(event[K, V]{op: OpAdd, key: k, value: v, target: id})
	}
	m.mu.Unlock()
	m.drain()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			for i, sid := range m.order {
				if sid == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
		})
	}
}

func (m *Map[K, V]) enqueue(e event[K, V]) {
	m.queue = append(m.queue, e)
}

func (m *Map[K, V]) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		e := m.queue[0]
		m.queue = m.queue[1:]
		var targets []Handler[K, V]
		if e.target != 0 {
			if h, ok := m.subs[e.target]; ok {
				targets = append(targets, h)
			}
		} else {
			for _, id := range m.order {
				targets = append(targets, m.subs[id])
			}
		}
		m.mu.Unlock()
		for _, h := range targets {
			h(e.op, e.key, e.value)
		}
		m.mu.Lock()
	}
	m.queue = nil
	m.draining = false
	m.mu.Unlock()
}
