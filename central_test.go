package sensorscan

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type discovery struct {
	p   *Peripheral
	err error
}

type fakeCentral struct {
	lck sync.Mutex

	discoveries []discovery
	holdOpen    bool

	connected    map[string]bool
	connectErr   error
	connectGate  chan struct{}
	connectCalls int

	discoverCalls int
	values        map[uuid.UUID]string
	readErr       error
	reads         int

	disconnects []string
	closes      int
}

var _ Central = (*fakeCentral)(nil)

func newFakeCentral(discoveries ...discovery) *fakeCentral {
	return &fakeCentral{
		discoveries: discoveries,
		connected:   make(map[string]bool),
		values:      make(map[uuid.UUID]string),
	}
}

func found(id, name string) discovery {
	return discovery{p: &Peripheral{ID: id, Name: name}}
}

func failed(msg string) discovery {
	return discovery{err: fmt.Errorf("%s", msg)}
}

func (c *fakeCentral) Discover(ctx context.Context) iter.Seq2[*Peripheral, error] {
	return func(yield func(*Peripheral, error) bool) {
		for _, d := range c.discoveries {
			if !yield(d.p, d.err) {
				return
			}
		}
		if c.holdOpen {
			<-ctx.Done()
		}
	}
}

func (c *fakeCentral) IsConnected(ctx context.Context, id string) (bool, error) {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.connected[id], nil
}

func (c *fakeCentral) Connect(ctx context.Context, id string) (*Peripheral, error) {
	c.lck.Lock()
	c.connectCalls++
	gate := c.connectGate
	c.lck.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.connectErr != nil {
		return nil, c.connectErr
	}

	c.lck.Lock()
	defer c.lck.Unlock()
	c.connected[id] = true
	return &Peripheral{ID: id, Name: "ESP32"}, nil
}

func (c *fakeCentral) DiscoverAll(ctx context.Context, id string) error {
	c.lck.Lock()
	defer c.lck.Unlock()
	c.discoverCalls++
	return nil
}

func (c *fakeCentral) ReadCharacteristic(
	ctx context.Context,
	id string,
	service, characteristic uuid.UUID,
) (*Characteristic, error) {
	c.lck.Lock()
	defer c.lck.Unlock()
	c.reads++

	if c.readErr != nil {
		return nil, c.readErr
	}
	if !c.connected[id] {
		return nil, ErrNotConnected
	}

	v, ok := c.values[characteristic]
	if !ok {
		return nil, ErrCharacteristicNotFound
	}
	return &Characteristic{
		PeripheralID: id,
		Service:      service,
		UUID:         characteristic,
		Value:        v,
	}, nil
}

func (c *fakeCentral) Disconnect(id string) error {
	c.lck.Lock()
	defer c.lck.Unlock()
	if !c.connected[id] {
		return ErrNotConnected
	}
	delete(c.connected, id)
	c.disconnects = append(c.disconnects, id)
	return nil
}

func (c *fakeCentral) Close() error {
	c.lck.Lock()
	defer c.lck.Unlock()
	c.closes++
	return nil
}

func (c *fakeCentral) calls() (connects, discovers int) {
	c.lck.Lock()
	defer c.lck.Unlock()
	return c.connectCalls, c.discoverCalls
}

type fakeStates struct {
	state    AdapterState
	notifier *Notifier[AdapterState]
}

var _ StateProvider = (*fakeStates)(nil)

func newFakeStates(state AdapterState) *fakeStates {
	return &fakeStates{
		state:    state,
		notifier: NewNotifier[AdapterState](),
	}
}

func (s *fakeStates) State(ctx context.Context) (AdapterState, error) {
	return s.state, nil
}

func (s *fakeStates) OnStateChange(fn func(AdapterState), emitCurrent bool) (func(), error) {
	remove := s.notifier.Subscribe(fn)
	if emitCurrent {
		fn(s.state)
	}
	return remove, nil
}

func (s *fakeStates) set(state AdapterState) {
	s.state = state
	s.notifier.Notify(state)
}

type logBuffer struct {
	lck sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.lck.Lock()
	defer b.lck.Unlock()
	return b.buf.Write(p)
}

type logEntry struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func (b *logBuffer) entries() []logEntry {
	b.lck.Lock()
	defer b.lck.Unlock()

	var entries []logEntry
	s := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for s.Scan() {
		var e logEntry
		if err := json.Unmarshal(s.Bytes(), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

// count returns the number of entries logged at level with msg.
func (b *logBuffer) count(level slog.Level, msg string) int {
	n := 0
	for _, e := range b.entries() {
		if e.Level == level.String() && e.Msg == msg {
			n++
		}
	}
	return n
}

func newTestLogger() (*slog.Logger, *logBuffer) {
	b := &logBuffer{}
	return slog.New(slog.NewJSONHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug})), b
}
