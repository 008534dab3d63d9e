package core

import (
	"sync"
	"time"
)

// AuthBroadcaster fans AuthEvents out to registered listeners. AuthClient
// implementations embed it to provide OnAuthStateChange.
type AuthBroadcaster struct {
	mu        sync.Mutex
	listeners map[uint64]func(AuthEvent)
	next      uint64
}

// OnAuthStateChange registers fn. The returned function is idempotent.
func (b *AuthBroadcaster) OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func()) {
	b.mu.Lock()
	if b.listeners == nil {
		b.listeners = make(map[uint64]func(AuthEvent))
	}
	id := b.next
	b.next++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Emit delivers an event to every listener. Listeners run on the caller's
// goroutine, outside the registry lock.
func (b *AuthBroadcaster) Emit(t AuthEventType, s *AuthSession) {
	b.mu.Lock()
	fns := make([]func(AuthEvent), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	evt := AuthEvent{Type: t, Timestamp: time.Now().Unix()}
	if s != nil {
		cp := *s
		evt.Session = &cp
	}
	for _, fn := range fns {
		fn(evt)
	}
}

// Listeners returns the number of registered listeners.
func (b *AuthBroadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
