package bluetooth

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kellegous/poop"
	"tinygo.org/x/bluetooth"

	"github.com/kellegous/sensorscan"
)

type charKey struct {
	service        uuid.UUID
	characteristic uuid.UUID
}

type link struct {
	device bluetooth.Device
	name   string
	chars  map[charKey]bluetooth.DeviceCharacteristic
}

// Client is a sensorscan.Central backed by a tinygo bluetooth adapter.
// Peripherals are identified by the string form of their address.
type Client struct {
	adapter      *bluetooth.Adapter
	log          *slog.Logger
	maxValueSize int
	linkCheck    LinkCheck

	lck   sync.Mutex
	seen  map[string]bluetooth.ScanResult
	links map[string]*link
}

var _ sensorscan.Central = (*Client)(nil)

func NewClient(adapter *bluetooth.Adapter, opts ...Option) (*Client, error) {
	if err := adapter.Enable(); err != nil {
		return nil, poop.Chain(err)
	}

	c := newClient(adapter, opts...)
	adapter.SetConnectHandler(c.onConnectChange)
	return c, nil
}

func newClient(adapter *bluetooth.Adapter, opts ...Option) *Client {
	o := buildOptions(opts)
	return &Client{
		adapter:      adapter,
		log:          o.log,
		maxValueSize: o.maxValueSize,
		linkCheck:    o.linkCheck,
		seen:         make(map[string]bluetooth.ScanResult),
		links:        make(map[string]*link),
	}
}

func (c *Client) onConnectChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	c.dropLink(device.Address.String(), "disconnected")
}

func (c *Client) dropLink(id, reason string) {
	c.lck.Lock()
	_, ok := c.links[id]
	delete(c.links, id)
	c.lck.Unlock()

	if ok {
		c.log.Debug("link dropped", "address", id, "reason", reason)
	}
}

func (c *Client) Discover(ctx context.Context) iter.Seq2[*sensorscan.Peripheral, error] {
	return func(yield func(*sensorscan.Peripheral, error) bool) {
		if err := ctx.Err(); err != nil {
			return
		}

		stop := context.AfterFunc(ctx, func() {
			c.adapter.StopScan()
		})
		defer stop()

		stopped := false
		if err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if stopped {
				return
			}

			id := result.Address.String()

			c.lck.Lock()
			c.seen[id] = result
			c.lck.Unlock()

			if !yield(&sensorscan.Peripheral{
				ID:   id,
				Name: result.LocalName(),
				RSSI: int(result.RSSI),
			}, nil) {
				stopped = true
				adapter.StopScan()
			}
		}); err != nil && !stopped && ctx.Err() == nil {
			yield(nil, poop.Chain(err))
		}
	}
}

// IsConnected reports whether the client holds a link to id. With a link
// check, a recorded link the platform no longer has is dropped.
func (c *Client) IsConnected(ctx context.Context, id string) (bool, error) {
	c.lck.Lock()
	_, ok := c.links[id]
	c.lck.Unlock()

	if !ok || c.linkCheck == nil {
		return ok, nil
	}

	connected, err := c.linkCheck(ctx, id)
	if err != nil {
		c.log.Warn("link check", "address", id, "error", err)
		return true, nil
	}

	if !connected {
		c.dropLink(id, "link check")
	}
	return connected, nil
}

func (c *Client) Connect(ctx context.Context, id string) (*sensorscan.Peripheral, error) {
	c.lck.Lock()
	result, ok := c.seen[id]
	c.lck.Unlock()
	if !ok {
		return nil, poop.Chain(fmt.Errorf("%w: %s", sensorscan.ErrPeripheralUnknown, id))
	}

	type connectResult struct {
		device bluetooth.Device
		err    error
	}

	// the adapter call cannot be cancelled, so it runs on its own goroutine
	// and a late connection is torn down again.
	ch := make(chan connectResult, 1)
	go func() {
		device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		ch <- connectResult{device: device, err: err}
	}()

	var res connectResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.err == nil {
				res.device.Disconnect()
			}
		}()
		return nil, poop.Chain(ctx.Err())
	}

	if res.err != nil {
		return nil, poop.Chain(res.err)
	}

	c.lck.Lock()
	c.links[id] = &link{
		device: res.device,
		name:   result.LocalName(),
		chars:  make(map[charKey]bluetooth.DeviceCharacteristic),
	}
	c.lck.Unlock()

	c.log.Debug("connected", "address", id, "name", result.LocalName())

	return &sensorscan.Peripheral{
		ID:   id,
		Name: result.LocalName(),
		RSSI: int(result.RSSI),
	}, nil
}

func (c *Client) linkFor(id string) (*link, error) {
	c.lck.Lock()
	defer c.lck.Unlock()
	l, ok := c.links[id]
	if !ok {
		return nil, poop.Chain(fmt.Errorf("%w: %s", sensorscan.ErrNotConnected, id))
	}
	return l, nil
}

func (c *Client) DiscoverAll(ctx context.Context, id string) error {
	l, err := c.linkFor(id)
	if err != nil {
		return poop.Chain(err)
	}

	services, err := l.device.DiscoverServices(nil)
	if err != nil {
		return poop.Chain(err)
	}

	chars := make(map[charKey]bluetooth.DeviceCharacteristic)
	for _, service := range services {
		if err := ctx.Err(); err != nil {
			return poop.Chain(err)
		}

		su, err := uuid.Parse(service.UUID().String())
		if err != nil {
			continue
		}

		characteristics, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return poop.Chain(err)
		}

		for _, char := range characteristics {
			cu, err := uuid.Parse(char.UUID().String())
			if err != nil {
				continue
			}
			chars[charKey{service: su, characteristic: cu}] = char
		}
	}

	c.lck.Lock()
	l.chars = chars
	c.lck.Unlock()

	c.log.Debug("discovered", "address", id, "services", len(services), "characteristics", len(chars))
	return nil
}

func (c *Client) ReadCharacteristic(
	ctx context.Context,
	id string,
	service, characteristic uuid.UUID,
) (*sensorscan.Characteristic, error) {
	l, err := c.linkFor(id)
	if err != nil {
		return nil, poop.Chain(err)
	}

	c.lck.Lock()
	char, ok := l.chars[charKey{service: service, characteristic: characteristic}]
	c.lck.Unlock()
	if !ok {
		return nil, poop.Chain(fmt.Errorf("%w: %s/%s", sensorscan.ErrCharacteristicNotFound, service, characteristic))
	}

	buf := make([]byte, c.maxValueSize)
	n, err := char.Read(buf)
	if err != nil {
		return nil, poop.Chain(err)
	}

	return &sensorscan.Characteristic{
		PeripheralID: id,
		Service:      service,
		UUID:         characteristic,
		Value:        base64.StdEncoding.EncodeToString(buf[:n]),
	}, nil
}

func (c *Client) Disconnect(id string) error {
	c.lck.Lock()
	l, ok := c.links[id]
	delete(c.links, id)
	c.lck.Unlock()

	if !ok {
		return poop.Chain(fmt.Errorf("%w: %s", sensorscan.ErrNotConnected, id))
	}

	return poop.Chain(l.device.Disconnect())
}

// Close stops any scan and disconnects every peripheral that is still
// connected.
func (c *Client) Close() error {
	c.adapter.StopScan()

	c.lck.Lock()
	links := c.links
	c.links = make(map[string]*link)
	c.lck.Unlock()

	var firstErr error
	for id, l := range links {
		if err := l.device.Disconnect(); err != nil {
			c.log.Warn("disconnect", "address", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return poop.Chain(firstErr)
}
