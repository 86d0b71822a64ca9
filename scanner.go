package sensorscan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kellegous/poop"
)

// Scanner runs timed discovery against a Central and records each new
// peripheral in a PeripheralList.
type Scanner struct {
	central Central
	list    *PeripheralList
	window  time.Duration
	policy  ScanErrorPolicy
	log     *slog.Logger
	onStart func()
	onFound func(Peripheral)
	onStop  func(int)

	lck    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScanner(
	central Central,
	list *PeripheralList,
	opts ...Option,
) *Scanner {
	o := buildOptions(opts)
	return &Scanner{
		central: central,
		list:    list,
		window:  o.scanWindow,
		policy:  o.scanErrorPolicy,
		log:     o.logger,
	}
}

// OnStarted sets a callback that runs at the beginning of every scan, before
// any peripheral is reported. It must be called before Start.
func (s *Scanner) OnStarted(fn func()) {
	s.onStart = fn
}

// OnFound sets a callback for peripherals that were added to the list. It must
// be called before Start.
func (s *Scanner) OnFound(fn func(Peripheral)) {
	s.onFound = fn
}

// OnStopped sets a callback that runs after every scan with the number of
// peripherals in the list. It must be called before Start.
func (s *Scanner) OnStopped(fn func(int)) {
	s.onStop = fn
}

// Start begins discovery in the background and returns immediately. The scan
// stops on its own once the window has elapsed, or earlier when ctx is done.
func (s *Scanner) Start(ctx context.Context) error {
	if s.central == nil {
		return poop.Chain(ErrNoClient)
	}

	s.lck.Lock()
	defer s.lck.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return poop.Chain(ErrScanInProgress)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.window)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer cancel()
		s.run(ctx, cancel)
	}()

	return nil
}

func (s *Scanner) run(ctx context.Context, stop context.CancelFunc) {
	s.log.Info("scan started", "window", s.window)
	if s.onStart != nil {
		s.onStart()
	}
	for p, err := range s.central.Discover(ctx) {
		if err != nil {
			s.log.Error("scan error", "error", err)
			if s.policy == ScanErrorStop {
				stop()
				break
			}
			continue
		}

		if p == nil {
			continue
		}

		if s.list.Add(*p) {
			s.log.Debug("peripheral discovered", "id", p.ID, "name", p.Name, "rssi", p.RSSI)
			if s.onFound != nil {
				s.onFound(*p)
			}
		}
	}
	s.log.Info("scan stopped", "peripherals", s.list.Len())
	if s.onStop != nil {
		s.onStop(s.list.Len())
	}
}

// Scanning reports whether a scan is active.
func (s *Scanner) Scanning() bool {
	s.lck.Lock()
	defer s.lck.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the active scan, if any, has stopped.
func (s *Scanner) Wait() {
	s.lck.Lock()
	done := s.done
	s.lck.Unlock()
	if done != nil {
		<-done
	}
}

// Stop ends the active scan, if any, and waits for it to finish.
func (s *Scanner) Stop() {
	s.lck.Lock()
	cancel, done := s.cancel, s.done
	s.lck.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
