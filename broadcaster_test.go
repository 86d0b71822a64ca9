package sensorscan

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

func TestShutdown(t *testing.T) {
	t.Run("no subscriptions", func(t *testing.T) {
		b := NewBroadcaster[int]()
		b.Shutdown()
	})

	t.Run("shutdown cancels subscriptions", func(t *testing.T) {
		b := NewBroadcaster[int]()

		nextA, doneA := iter.Pull2(b.Subscribe(t.Context()))
		defer doneA()

		nextB, doneB := iter.Pull2(b.Subscribe(t.Context()))
		defer doneB()

		b.Shutdown()

		if _, err, _ := nextA(); !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected %v, got %v", ErrShutdown, err)
		}

		if _, err, _ := nextB(); !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected %v, got %v", ErrShutdown, err)
		}
	})

	t.Run("buffered values are delivered first", func(t *testing.T) {
		b := NewBroadcaster[int]()

		next, done := iter.Pull2(b.Subscribe(t.Context()))
		defer done()

		b.Publish(1)
		b.Publish(2)
		b.Shutdown()

		for _, expected := range []int{1, 2} {
			v, err, _ := next()
			if err != nil {
				t.Fatal(err)
			}
			if v != expected {
				t.Fatalf("expected %d, got %d", expected, v)
			}
		}

		if _, err, _ := next(); !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected %v, got %v", ErrShutdown, err)
		}
	})

	t.Run("subscribe after shutdown", func(t *testing.T) {
		b := NewBroadcaster[int]()
		b.Shutdown()

		next, done := iter.Pull2(b.Subscribe(t.Context()))
		defer done()

		if _, err, _ := next(); !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected %v, got %v", ErrShutdown, err)
		}
	})
}

func TestPublish(t *testing.T) {
	b := NewBroadcaster[string]()

	next, done := iter.Pull2(b.Subscribe(t.Context()))
	defer done()

	for _, v := range []string{"a", "b", "c"} {
		b.Publish(v)
	}

	for _, expected := range []string{"a", "b", "c"} {
		v, err, ok := next()
		if !ok || err != nil {
			t.Fatalf("expected %q, got %v %v", expected, err, ok)
		}
		if v != expected {
			t.Fatalf("expected %q, got %q", expected, v)
		}
	}
}

func TestSubscribeContextDone(t *testing.T) {
	b := NewBroadcaster[int]()

	ctx, cancel := context.WithCancel(t.Context())
	next, done := iter.Pull2(b.Subscribe(ctx))
	defer done()

	cancel()

	if _, err, _ := next(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected %v, got %v", context.Canceled, err)
	}

	// a released subscription must not block publishers.
	b.Publish(1)
}

func TestPublishToIdleCanceledSubscriber(t *testing.T) {
	b := NewBroadcaster[int]()

	ctx, cancel := context.WithCancel(t.Context())
	_ = b.Subscribe(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 3 * streamBuffer {
			b.Publish(i)
		}
		b.Shutdown()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected publish to a canceled subscriber not to block")
	}
}

func TestShutdownReleasesBlockedPublish(t *testing.T) {
	b := NewBroadcaster[int]()
	_ = b.Subscribe(t.Context())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 3 * streamBuffer {
			b.Publish(i)
		}
	}()

	// give the publisher time to fill the buffer.
	time.Sleep(10 * time.Millisecond)
	b.Shutdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected Shutdown to release a blocked publish")
	}
}
