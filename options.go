package sensorscan

import (
	"io"
	"log/slog"
	"time"
)

// DefaultScanWindow is how long a scan runs before discovery is stopped.
const DefaultScanWindow = 20 * time.Second

// ScanErrorPolicy decides what a scan does with a failed discovery event.
type ScanErrorPolicy int

const (
	// ScanErrorContinue logs the event and keeps scanning.
	ScanErrorContinue ScanErrorPolicy = iota
	// ScanErrorStop logs the event and ends the scan.
	ScanErrorStop
)

// Pacing adds fixed delays around a connect. Some peripherals drop the
// connection when a central talks to them too early.
type Pacing struct {
	BeforeCheck   time.Duration
	BeforeConnect time.Duration
	AfterConnect  time.Duration
}

type Options struct {
	logger             *slog.Logger
	platform           Platform
	scanWindow         time.Duration
	scanErrorPolicy    ScanErrorPolicy
	pacing             Pacing
	connectTimeout     time.Duration
	discoverOnConnect  bool
	discoverBeforeRead bool
	sensors            Sensors
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		logger:            discardLogger(),
		scanWindow:        DefaultScanWindow,
		discoverOnConnect: true,
		sensors:           DefaultSensors(),
	}
}

func buildOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithLogger(log *slog.Logger) Option {
	return func(opts *Options) {
		if log != nil {
			opts.logger = log
		}
	}
}

func WithPlatform(p Platform) Option {
	return func(opts *Options) {
		opts.platform = p
	}
}

// WithScanWindow sets how long each scan runs. Non-positive values are
// ignored.
func WithScanWindow(d time.Duration) Option {
	return func(opts *Options) {
		if d > 0 {
			opts.scanWindow = d
		}
	}
}

func WithScanErrorPolicy(p ScanErrorPolicy) Option {
	return func(opts *Options) {
		opts.scanErrorPolicy = p
	}
}

// WithConnectTimeout bounds each connect attempt, pacing included. Zero
// means no bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.connectTimeout = d
	}
}

func WithPacing(p Pacing) Option {
	return func(opts *Options) {
		opts.pacing = p
	}
}

// WithDiscoverOnConnect controls whether Connect discovers all services and
// characteristics after the link is up.
func WithDiscoverOnConnect(v bool) Option {
	return func(opts *Options) {
		opts.discoverOnConnect = v
	}
}

// WithDiscoverBeforeRead makes every read discover services first.
func WithDiscoverBeforeRead(v bool) Option {
	return func(opts *Options) {
		opts.discoverBeforeRead = v
	}
}

func WithSensors(s Sensors) Option {
	return func(opts *Options) {
		opts.sensors = s
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
