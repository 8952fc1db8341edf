// Package subscription provides disposable callback registration with ordered
// fan-out notification.
//
// A Subscription holds no reference back to the Registry that created it.
// Disposal only flips local state; the Registry skips disposed entries during
// dispatch and prunes them lazily on the next registration.
package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler receives one notification.
type Handler[E any] func(event E)

// Subscription is a registered handler plus an optional caller-supplied
// context value. Once disposed it is never invoked again.
type Subscription[E any] struct {
	id       string
	handler  Handler[E]
	context  any
	disposed atomic.Bool
}

// New creates a standalone Subscription. Most callers use Registry.Subscribe.
func New[E any](handler Handler[E], context any) *Subscription[E] {
	return &Subscription[E]{
		id:      uuid.Must(uuid.NewV7()).String(),
		handler: handler,
		context: context,
	}
}

// ID returns the unique subscription identifier.
func (s *Subscription[E]) ID() string {
	return s.id
}

// Context returns the value supplied at registration.
func (s *Subscription[E]) Context() any {
	return s.context
}

// Dispose stops all future deliveries. Safe to call more than once and from
// within a handler.
func (s *Subscription[E]) Dispose() {
	s.disposed.Store(true)
}

// Disposed reports whether Dispose has been called.
func (s *Subscription[E]) Disposed() bool {
	return s.disposed.Load()
}

// Trigger invokes the handler unless the subscription is disposed.
func (s *Subscription[E]) Trigger(event E) {
	if s.disposed.Load() || s.handler == nil {
		return
	}
	s.handler(event)
}

// Registry is an ordered list of subscriptions. Safe for concurrent use.
type Registry[E any] struct {
	subs []*Subscription[E]
	mu   sync.Mutex
}

// Subscribe registers handler and returns its Subscription.
func (r *Registry[E]) Subscribe(handler Handler[E], context any) *Subscription[E] {
	sub := New(handler, context)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	r.subs = append(r.subs, sub)
	return sub
}

// Notify delivers event to every active subscription in registration order.
// Handlers run outside the registry lock, so they may subscribe, dispose
// themselves, or dispose others; a subscription disposed mid fan-out is
// skipped when its turn comes.
func (r *Registry[E]) Notify(event E) {
	r.mu.Lock()
	snapshot := make([]*Subscription[E], len(r.subs))
	copy(snapshot, r.subs)
	r.mu.Unlock()

	for _, sub := range snapshot {
		sub.Trigger(event)
	}
}

// Len returns the number of subscriptions that have not been disposed.
func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, sub := range r.subs {
		if !sub.Disposed() {
			n++
		}
	}
	return n
}

// DisposeAll disposes every registered subscription.
func (r *Registry[E]) DisposeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		sub.Dispose()
	}
	r.subs = nil
}

func (r *Registry[E]) prune() {
	active := r.subs[:0]
	for _, sub := range r.subs {
		if !sub.Disposed() {
			active = append(active, sub)
		}
	}
	clear(r.subs[len(active):])
	r.subs = active
}
