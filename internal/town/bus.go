package town

import (
	"log/slog"
	"sync"
)

// ListenerBus is an observer registry decoupling state mutation from
// delivery. Delivery is synchronous and in registration order; a listener
// that panics during delivery is isolated so the remaining listeners still
// receive the event.
type ListenerBus struct {
	mu        sync.Mutex
	listeners []Listener
	index     map[string]int
}

func NewListenerBus() *ListenerBus {
	return &ListenerBus{
		index: make(map[string]int),
	}
}

// Register adds a listener. Registering the same listener ID twice is a no-op.
func (b *ListenerBus) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.index[l.ID()]; ok {
		return
	}
	b.index[l.ID()] = len(b.listeners)
	b.listeners = append(b.listeners, l)
}

// Remove drops the listener with the given ID. Unknown IDs are a no-op.
func (b *ListenerBus) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.index[id]
	if !ok {
		return
	}
	b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
	delete(b.index, id)
	for j := i; j < len(b.listeners); j++ {
		b.index[b.listeners[j].ID()] = j
	}
}

// Len returns the number of registered listeners.
func (b *ListenerBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Broadcast delivers the event to every currently registered listener.
func (b *ListenerBus) Broadcast(ev Event) {
	b.mu.Lock()
	targets := make([]Listener, len(b.listeners))
	copy(targets, b.listeners)
	b.mu.Unlock()

	for _, l := range targets {
		b.deliver(l, ev)
	}
}

func (b *ListenerBus) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("listener panicked during delivery", "listener", l.ID(), "event", ev.Kind, "panic", r)
		}
	}()
	l.Notify(ev)
}
