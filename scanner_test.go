package sensorscan

import (
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func ids(peripherals []Peripheral) []string {
	ids := make([]string, 0, len(peripherals))
	for _, p := range peripherals {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestScannerDeduplicates(t *testing.T) {
	central := newFakeCentral(
		found("a", "ESP32"),
		found("b", ""),
		found("a", "renamed"),
		found("c", "Thingy"),
		found("b", "named"),
	)

	list := NewPeripheralList()
	s := NewScanner(central, list)

	var foundIDs []string
	stopped := -1
	s.OnFound(func(p Peripheral) {
		foundIDs = append(foundIDs, p.ID)
	})
	s.OnStopped(func(n int) {
		stopped = n
	})

	if err := s.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	expected := []string{"a", "b", "c"}
	if got := ids(list.All()); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	if !reflect.DeepEqual(foundIDs, expected) {
		t.Fatalf("expected found callbacks for %v, got %v", expected, foundIDs)
	}

	if stopped != 3 {
		t.Fatalf("expected stop callback with 3, got %d", stopped)
	}

	if p, _ := list.Get("a"); p.Name != "ESP32" {
		t.Fatalf("expected first-seen name, got %q", p.Name)
	}
}

func TestScannerNilCentral(t *testing.T) {
	list := NewPeripheralList()
	s := NewScanner(nil, list)

	if err := s.Start(t.Context()); !errors.Is(err, ErrNoClient) {
		t.Fatalf("expected %v, got %v", ErrNoClient, err)
	}

	if s.Scanning() {
		t.Fatal("expected no scan")
	}

	if list.Len() != 0 {
		t.Fatalf("expected no peripherals, got %d", list.Len())
	}
}

func TestScannerErrorEvents(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		log, logs := newTestLogger()
		central := newFakeCentral(
			found("a", "ESP32"),
			failed("scan failed"),
			found("b", ""),
		)

		list := NewPeripheralList()
		s := NewScanner(central, list, WithLogger(log))
		if err := s.Start(t.Context()); err != nil {
			t.Fatal(err)
		}
		s.Wait()

		if got := ids(list.All()); !reflect.DeepEqual(got, []string{"a", "b"}) {
			t.Fatalf("expected [a b], got %v", got)
		}

		if n := logs.count(slog.LevelError, "scan error"); n != 1 {
			t.Fatalf("expected 1 scan error, got %d", n)
		}
	})

	t.Run("stop", func(t *testing.T) {
		central := newFakeCentral(
			found("a", "ESP32"),
			failed("scan failed"),
			found("b", ""),
		)
		central.holdOpen = true

		list := NewPeripheralList()
		s := NewScanner(central, list, WithScanErrorPolicy(ScanErrorStop))
		if err := s.Start(t.Context()); err != nil {
			t.Fatal(err)
		}
		s.Wait()

		if got := ids(list.All()); !reflect.DeepEqual(got, []string{"a"}) {
			t.Fatalf("expected [a], got %v", got)
		}

		if s.Scanning() {
			t.Fatal("expected scan to have stopped")
		}
	})
}

func TestScannerInProgress(t *testing.T) {
	central := newFakeCentral(found("a", "ESP32"))
	central.holdOpen = true

	s := NewScanner(central, NewPeripheralList())
	if err := s.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if !s.Scanning() {
		t.Fatal("expected scan to be active")
	}

	if err := s.Start(t.Context()); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected %v, got %v", ErrScanInProgress, err)
	}

	s.Stop()

	if s.Scanning() {
		t.Fatal("expected scan to have stopped")
	}

	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("expected a new scan to start, got %v", err)
	}
}

func TestScannerWindow(t *testing.T) {
	central := newFakeCentral()
	central.holdOpen = true

	s := NewScanner(central, NewPeripheralList(), WithScanWindow(20*time.Millisecond))
	if err := s.Start(t.Context()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected scan to stop after its window")
	}
}
