package sensorscan

import (
	"slices"
	"sync"
)

type listener[T any] struct {
	fn func(T)
}

// Notifier fans a value out to callback subscribers. Callbacks run on the
// goroutine that calls Notify.
type Notifier[T any] struct {
	lock      sync.RWMutex
	listeners []*listener[T]
}

func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{}
}

// Subscribe registers fn and returns a func that removes it again. The
// returned func may be called more than once.
func (n *Notifier[T]) Subscribe(fn func(T)) func() {
	n.lock.Lock()
	defer n.lock.Unlock()
	lr := &listener[T]{fn: fn}
	n.listeners = append(n.listeners, lr)
	return func() {
		n.unsubscribe(lr)
	}
}

func (n *Notifier[T]) unsubscribe(lr *listener[T]) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.listeners = slices.DeleteFunc(n.listeners, func(l *listener[T]) bool {
		return l == lr
	})
}

func (n *Notifier[T]) Notify(v T) {
	n.lock.RLock()
	listeners := slices.Clone(n.listeners)
	n.lock.RUnlock()
	for _, l := range listeners {
		l.fn(v)
	}
}

// Len returns the number of active subscribers.
func (n *Notifier[T]) Len() int {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return len(n.listeners)
}
