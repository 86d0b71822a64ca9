package bluetooth

import (
	"context"
	"io"
	"log/slog"
)

const defaultMaxValueSize = 512

// LinkCheck reports whether the platform still has a link to a peripheral.
type LinkCheck func(ctx context.Context, id string) (bool, error)

type Options struct {
	log          *slog.Logger
	maxValueSize int
	linkCheck    LinkCheck
}

type Option func(*Options)

// WithLogger sets the logger used for connection and discovery details.
func WithLogger(log *slog.Logger) Option {
	return func(opts *Options) {
		if log != nil {
			opts.log = log
		}
	}
}

// WithMaxValueSize sets the largest characteristic value a read will return.
func WithMaxValueSize(n int) Option {
	return func(opts *Options) {
		if n > 0 {
			opts.maxValueSize = n
		}
	}
}

// WithLinkCheck makes IsConnected confirm a recorded link with the platform.
// On Linux the adapter never reports disconnects, so the backend passes
// bluez.(*StateProvider).DeviceConnected here.
func WithLinkCheck(fn LinkCheck) Option {
	return func(opts *Options) {
		opts.linkCheck = fn
	}
}

func buildOptions(opts []Option) *Options {
	o := &Options{
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxValueSize: defaultMaxValueSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
