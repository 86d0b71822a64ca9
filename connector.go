package sensorscan

import (
	"context"
	"log/slog"
	"time"

	"github.com/kellegous/poop"
	"golang.org/x/sync/singleflight"
)

// Connector brings up a link to a peripheral. Concurrent calls for the same
// peripheral share one attempt.
type Connector struct {
	central  Central
	pacing   Pacing
	timeout  time.Duration
	discover bool
	log      *slog.Logger
	group    singleflight.Group
}

func NewConnector(central Central, opts ...Option) *Connector {
	o := buildOptions(opts)
	return &Connector{
		central:  central,
		pacing:   o.pacing,
		timeout:  o.connectTimeout,
		discover: o.discoverOnConnect,
		log:      o.logger,
	}
}

// Connect checks whether id is connected, connects if it is not and, when
// enabled, discovers all services and characteristics. It reports whether a
// new link was made, which may be true alongside an error when a step after
// the connect failed. Callers that join an attempt in flight share its result;
// the attempt ignores their cancellation and is bounded by the connect timeout
// alone.
func (c *Connector) Connect(ctx context.Context, id string) (bool, error) {
	if c.central == nil {
		return false, poop.Chain(ErrNoClient)
	}

	ch := c.group.DoChan(id, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		return c.connect(ctx, id)
	})

	select {
	case res := <-ch:
		made, _ := res.Val.(bool)
		return made, res.Err
	case <-ctx.Done():
		return false, poop.Chain(ctx.Err())
	}
}

func (c *Connector) connect(ctx context.Context, id string) (bool, error) {
	c.log.Info("checking connection", "id", id)

	if err := sleep(ctx, c.pacing.BeforeCheck); err != nil {
		return false, poop.Chain(err)
	}

	connected, err := c.central.IsConnected(ctx, id)
	if err != nil {
		return false, poop.Chain(err)
	}
	c.log.Debug("connection status", "id", id, "connected", connected)

	if connected {
		c.log.Info("already connected", "id", id)
		return false, nil
	}

	if err := sleep(ctx, c.pacing.BeforeConnect); err != nil {
		return false, poop.Chain(err)
	}

	c.log.Info("connecting", "id", id)
	p, err := c.central.Connect(ctx, id)
	if err != nil {
		return false, poop.Chain(err)
	}

	if err := sleep(ctx, c.pacing.AfterConnect); err != nil {
		return true, poop.Chain(err)
	}

	connected, err = c.central.IsConnected(ctx, id)
	if err != nil {
		return true, poop.Chain(err)
	}
	c.log.Info("connected", "id", p.ID, "name", p.DisplayName(), "connected", connected)

	if !c.discover {
		return true, nil
	}

	c.log.Debug("discovering services and characteristics", "id", id)
	if err := c.central.DiscoverAll(ctx, id); err != nil {
		return true, poop.Chain(err)
	}

	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
