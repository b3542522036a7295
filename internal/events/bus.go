// Package events is a typed in-process event bus. Handlers run synchronously in
// the publishing goroutine, in subscription order.
package events

import (
	"reflect"
	"sync"
)

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[reflect.Type][]subscription
}

type subscription struct {
	id uint64
	fn any
}

func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type][]subscription)}
}

// Subscribe registers fn for events of type E.
func Subscribe[E any](b *Bus, fn func(E)) (cancel func()) {
	t := reflect.TypeFor[E]()
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[t]
			for i, s := range list {
				if s.id == id {
					b.subs[t] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to every current subscriber of E.
func Publish[E any](b *Bus, e E) {
	b.mu.RLock()
	list := b.subs[reflect.TypeFor[E]()]
	handlers := make([]func(E), 0, len(list))
	for _, s := range list {
		handlers = append(handlers, s.fn.(func(E)))
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

// Count returns the number of subscribers of E.
func Count[E any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[E]()])
}
