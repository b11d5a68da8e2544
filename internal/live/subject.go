// Package live provides a replay-latest subject: subscribers receive the
// current value as soon as they subscribe and every newer value after that.
//
// Publication is version-gated. A publisher stamps each value with a
// monotonically increasing version taken while it still holds its own
// lock, then publishes after releasing it. Values older than the latest
// delivered version are dropped, so two publishers racing to deliver
// never leave subscribers holding a stale value.
//
// Callbacks run synchronously, one at a time, in version order. A callback
// must not subscribe to, publish on, or unsubscribe from the subject that
// is invoking it.
package live

import "sync"

// Subject holds the latest value of a live sequence and fans it out.
type Subject[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	has     bool
	closed  bool
	nextID  uint64
	subs    map[uint64]func(T)
}

// New returns an empty subject. Subscribers get nothing until the first
// Publish.
func New[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[uint64]func(T))}
}

// Publish delivers value to every subscriber unless a value with a newer
// version has already been delivered. It reports whether value was
// accepted.
func (s *Subject[T]) Publish(version uint64, value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.has && version < s.version {
		return false
	}

	s.value = value
	s.version = version
	s.has = true

	for _, fn := range s.subs {
		fn(value)
	}
	return true
}

// Subscribe registers fn and immediately replays the latest value, if any.
// Subscribing to a closed subject returns an already-closed Subscription.
func (s *Subject[T]) Subscribe(fn func(T)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &Subscription{}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	if s.has {
		fn(s.value)
	}

	return &Subscription{cancel: func() { s.unsubscribe(id) }}
}

// Latest returns the most recently accepted value.
func (s *Subject[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.has
}

// SubscriberCount returns the number of live subscriptions.
func (s *Subject[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close drops every subscriber. Later publishes and subscribes are no-ops.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[uint64]func(T))
}

func (s *Subject[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Subscription is a handle to a registered callback.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
