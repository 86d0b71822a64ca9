package sensorscan

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
)

var ErrShutdown = errors.New("shutdown")

const streamBuffer = 16

type subscription[T any] struct {
	once sync.Once
	ch   chan T
	done chan struct{}
}

func (s *subscription[T]) cancel() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *subscription[T]) publish(v T) {
	select {
	case s.ch <- v:
	case <-s.done:
	}
}

// Broadcaster delivers each published value, in order, to every active
// stream returned by Subscribe.
type Broadcaster[T any] struct {
	lck           sync.RWMutex
	subscriptions []*subscription[T]
	isShutdown    bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

func (b *Broadcaster[T]) register(s *subscription[T]) func() {
	b.lck.Lock()
	defer b.lck.Unlock()

	if b.isShutdown {
		s.cancel()
		return func() {}
	}

	b.subscriptions = append(b.subscriptions, s)

	return func() {
		s.cancel()

		b.lck.Lock()
		defer b.lck.Unlock()
		b.subscriptions = slices.DeleteFunc(b.subscriptions, func(ss *subscription[T]) bool {
			return s == ss
		})
	}
}

// Subscribe returns a stream of published values. The subscription starts
// when Subscribe is called and is released once ctx is done, even if the
// stream is never iterated. The stream ends with ErrShutdown after Shutdown,
// once buffered values are delivered, or with ctx.Err() when ctx is done.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) iter.Seq2[T, error] {
	s := &subscription[T]{
		ch:   make(chan T, streamBuffer),
		done: make(chan struct{}),
	}

	release := b.register(s)
	stop := context.AfterFunc(ctx, release)

	return func(yield func(T, error) bool) {
		defer release()
		defer stop()

		var zero T
		for {
			select {
			case v := <-s.ch:
				if !yield(v, nil) {
					return
				}
			case <-s.done:
				if err := ctx.Err(); err != nil {
					yield(zero, err)
					return
				}
				for {
					select {
					case v := <-s.ch:
						if !yield(v, nil) {
							return
						}
					default:
						yield(zero, ErrShutdown)
						return
					}
				}
			case <-ctx.Done():
				yield(zero, ctx.Err())
				return
			}
		}
	}
}

// Publish blocks while a live subscriber's buffer is full. A subscriber that
// has been released, by its ctx or by Shutdown, never blocks it.
func (b *Broadcaster[T]) Publish(v T) {
	b.lck.RLock()
	subscriptions := slices.Clone(b.subscriptions)
	b.lck.RUnlock()

	for _, s := range subscriptions {
		s.publish(v)
	}
}

func (b *Broadcaster[T]) Shutdown() {
	b.lck.Lock()
	defer b.lck.Unlock()

	for _, s := range b.subscriptions {
		s.cancel()
	}

	b.subscriptions = nil
	b.isShutdown = true
}
