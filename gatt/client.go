// Package gatt implements sensorscan.Central and sensorscan.StateProvider on
// top of github.com/paypal/gatt, which talks to the HCI socket directly.
package gatt

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kellegous/poop"
	"github.com/paypal/gatt"
	"github.com/paypal/gatt/examples/option"

	"github.com/kellegous/sensorscan"
)

// StateFromGatt maps a gatt device state onto a sensorscan.AdapterState.
func StateFromGatt(s gatt.State) sensorscan.AdapterState {
	switch s {
	case gatt.StateResetting:
		return sensorscan.AdapterStateResetting
	case gatt.StateUnsupported:
		return sensorscan.AdapterStateUnsupported
	case gatt.StateUnauthorized:
		return sensorscan.AdapterStateUnauthorized
	case gatt.StatePoweredOff:
		return sensorscan.AdapterStatePoweredOff
	case gatt.StatePoweredOn:
		return sensorscan.AdapterStatePoweredOn
	}
	return sensorscan.AdapterStateUnknown
}

type charKey struct {
	service        uuid.UUID
	characteristic uuid.UUID
}

type link struct {
	peripheral gatt.Peripheral
	chars      map[charKey]*gatt.Characteristic
}

type scan struct {
	ch   chan *sensorscan.Peripheral
	done chan struct{}
}

type Client struct {
	dev    gatt.Device
	log    *slog.Logger
	states *sensorscan.Notifier[sensorscan.AdapterState]

	lck     sync.Mutex
	state   sensorscan.AdapterState
	seen    map[string]gatt.Peripheral
	links   map[string]*link
	pending map[string][]chan error
	scan    *scan
}

var (
	_ sensorscan.Central       = (*Client)(nil)
	_ sensorscan.StateProvider = (*Client)(nil)
)

// NewClient opens the default HCI device with the gatt client options.
func NewClient(log *slog.Logger) (*Client, error) {
	dev, err := gatt.NewDevice(option.DefaultClientOptions...)
	if err != nil {
		return nil, poop.Chain(err)
	}
	return newClient(dev, log)
}

func newClient(dev gatt.Device, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		dev:     dev,
		log:     log,
		states:  sensorscan.NewNotifier[sensorscan.AdapterState](),
		seen:    make(map[string]gatt.Peripheral),
		links:   make(map[string]*link),
		pending: make(map[string][]chan error),
	}

	dev.Handle(
		gatt.PeripheralDiscovered(c.onDiscovered),
		gatt.PeripheralConnected(c.onConnected),
		gatt.PeripheralDisconnected(c.onDisconnected),
	)

	if err := dev.Init(c.onStateChanged); err != nil {
		return nil, poop.Chain(err)
	}

	return c, nil
}

func (c *Client) onStateChanged(d gatt.Device, s gatt.State) {
	state := StateFromGatt(s)

	c.lck.Lock()
	c.state = state
	c.lck.Unlock()

	if !state.IsPoweredOn() {
		d.StopScanning()
	}

	c.log.Debug("adapter state changed", "state", state)
	c.states.Notify(state)
}

func (c *Client) State(ctx context.Context) (sensorscan.AdapterState, error) {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.state, nil
}

func (c *Client) OnStateChange(fn func(sensorscan.AdapterState), emitCurrent bool) (func(), error) {
	unsub := c.states.Subscribe(fn)
	if emitCurrent {
		state, _ := c.State(context.Background())
		fn(state)
	}
	return unsub, nil
}

func (c *Client) onDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	name := p.Name()
	if a != nil && a.LocalName != "" {
		name = a.LocalName
	}

	c.lck.Lock()
	c.seen[p.ID()] = p
	s := c.scan
	c.lck.Unlock()

	if s == nil {
		return
	}

	select {
	case s.ch <- &sensorscan.Peripheral{ID: p.ID(), Name: name, RSSI: rssi}:
	case <-s.done:
	}
}

func (c *Client) Discover(ctx context.Context) iter.Seq2[*sensorscan.Peripheral, error] {
	return func(yield func(*sensorscan.Peripheral, error) bool) {
		s := &scan{
			ch:   make(chan *sensorscan.Peripheral, 16),
			done: make(chan struct{}),
		}

		c.lck.Lock()
		if c.scan != nil {
			c.lck.Unlock()
			yield(nil, poop.Chain(sensorscan.ErrScanInProgress))
			return
		}
		c.scan = s
		state := c.state
		c.lck.Unlock()

		defer func() {
			c.dev.StopScanning()
			close(s.done)
			c.lck.Lock()
			c.scan = nil
			c.lck.Unlock()
		}()

		if !state.IsPoweredOn() {
			if !yield(nil, poop.Newf("adapter is %s", state)) {
				return
			}
		} else {
			c.dev.Scan([]gatt.UUID{}, false)
		}

		for {
			select {
			case p := <-s.ch:
				if !yield(p, nil) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) IsConnected(ctx context.Context, id string) (bool, error) {
	c.lck.Lock()
	defer c.lck.Unlock()
	_, ok := c.links[id]
	return ok, nil
}

func (c *Client) Connect(ctx context.Context, id string) (*sensorscan.Peripheral, error) {
	ch := make(chan error, 1)

	c.lck.Lock()
	p, ok := c.seen[id]
	if !ok {
		c.lck.Unlock()
		return nil, poop.Chain(fmt.Errorf("%w: %s", sensorscan.ErrPeripheralUnknown, id))
	}
	c.pending[id] = append(c.pending[id], ch)
	c.lck.Unlock()

	c.dev.Connect(p)

	select {
	case err := <-ch:
		if err != nil {
			return nil, poop.Chain(err)
		}
	case <-ctx.Done():
		c.dropPending(id, ch)
		c.dev.CancelConnection(p)
		return nil, poop.Chain(ctx.Err())
	}

	return &sensorscan.Peripheral{ID: id, Name: p.Name()}, nil
}

func (c *Client) dropPending(id string, ch chan error) {
	c.lck.Lock()
	defer c.lck.Unlock()
	waiters := c.pending[id]
	for i, w := range waiters {
		if w == ch {
			c.pending[id] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(c.pending[id]) == 0 {
		delete(c.pending, id)
	}
}

func (c *Client) resolve(id string, err error) {
	c.lck.Lock()
	waiters := c.pending[id]
	delete(c.pending, id)
	c.lck.Unlock()

	for _, w := range waiters {
		w <- err
	}
}

func (c *Client) onConnected(p gatt.Peripheral, err error) {
	if err == nil {
		c.lck.Lock()
		c.links[p.ID()] = &link{
			peripheral: p,
			chars:      make(map[charKey]*gatt.Characteristic),
		}
		c.lck.Unlock()
		c.log.Debug("connected", "id", p.ID(), "name", p.Name())
	}
	c.resolve(p.ID(), err)
}

func (c *Client) onDisconnected(p gatt.Peripheral, err error) {
	c.lck.Lock()
	delete(c.links, p.ID())
	c.lck.Unlock()

	c.log.Debug("disconnected", "id", p.ID(), "error", err)
	c.resolve(p.ID(), fmt.Errorf("%w: %s", sensorscan.ErrNotConnected, p.ID()))
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

	services, err := l.peripheral.DiscoverServices(nil)
	if err != nil {
		return poop.Chain(err)
	}

	chars := make(map[charKey]*gatt.Characteristic)
	for _, service := range services {
		if err := ctx.Err(); err != nil {
			return poop.Chain(err)
		}

		su, err := toUUID(service.UUID().String())
		if err != nil {
			continue
		}

		characteristics, err := l.peripheral.DiscoverCharacteristics(nil, service)
		if err != nil {
			return poop.Chain(err)
		}

		for _, char := range characteristics {
			cu, err := toUUID(char.UUID().String())
			if err != nil {
				continue
			}
			chars[charKey{service: su, characteristic: cu}] = char
		}
	}

	c.lck.Lock()
	l.chars = chars
	c.lck.Unlock()

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

	b, err := l.peripheral.ReadCharacteristic(char)
	if err != nil {
		return nil, poop.Chain(err)
	}

	return &sensorscan.Characteristic{
		PeripheralID: id,
		Service:      service,
		UUID:         characteristic,
		Value:        base64.StdEncoding.EncodeToString(b),
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

	c.dev.CancelConnection(l.peripheral)
	return nil
}

// Close cancels every connection and stops the HCI device.
func (c *Client) Close() error {
	c.dev.StopScanning()

	c.lck.Lock()
	links := c.links
	c.links = make(map[string]*link)
	c.lck.Unlock()

	for _, l := range links {
		c.dev.CancelConnection(l.peripheral)
	}

	// Stop is only on the linux device.
	if s, ok := c.dev.(interface{ Stop() error }); ok {
		return poop.Chain(s.Stop())
	}
	return nil
}
