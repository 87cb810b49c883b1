package imp

import "sync"

// SubscriptionID identifies one subscriber of an Event.
type SubscriptionID uint64

type subscriber[T any] struct {
	id SubscriptionID
	fn func(T)
}

// Event is a typed list of subscribers. Subscribers are called in
// registration order, outside any lock, so a subscriber may Subscribe or
// Unsubscribe while being called. The zero value is ready to use.
type Event[T any] struct {
	mu   sync.Mutex
	next SubscriptionID
	subs []subscriber[T]
}

// Subscribe adds fn and returns its id.
func (e *Event[T]) Subscribe(fn func(T)) SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.subs = append(e.subs, subscriber[T]{id: e.next, fn: fn})
	return e.next
}

// Unsubscribe removes the subscriber with id. It reports whether one was
// found.
func (e *Event[T]) Unsubscribe(id SubscriptionID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Fire calls every subscriber with v.
func (e *Event[T]) Fire(v T) {
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()
	for _, s := range subs {
		s.fn(v)
	}
}
