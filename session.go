// Package sensorscan scans for BLE peripherals, follows the adapter power
// state, connects to a peripheral and reads text-encoded sensor
// characteristics from it.
package sensorscan

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kellegous/poop"
)

// Session holds everything one screen of the application needs: the BLE
// client, the adapter state, and the discovered peripherals. Operations log
// their failures and never return them. Close releases every resource the
// session owns.
type Session struct {
	central   Central
	sensors   Sensors
	log       *slog.Logger
	gate      *PermissionGate
	observer  *StateObserver
	list      *PeripheralList
	scanner   *Scanner
	connector *Connector
	reader    *Reader
	events    *Broadcaster[Event]

	ctx    context.Context
	cancel context.CancelFunc

	lck       sync.Mutex
	permitted bool
	connected map[string]bool
	closeOnce sync.Once
	closeErr  error
}

func NewSession(
	central Central,
	states StateProvider,
	perms PermissionRequester,
	opts ...Option,
) *Session {
	o := buildOptions(opts)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		central:   central,
		sensors:   o.sensors,
		log:       o.logger,
		gate:      NewPermissionGate(o.platform, perms, o.logger),
		list:      NewPeripheralList(),
		events:    NewBroadcaster[Event](),
		ctx:       ctx,
		cancel:    cancel,
		connected: make(map[string]bool),
	}

	s.observer = NewStateObserver(states, o.logger, func(state AdapterState) {
		s.events.Publish(StateChangedEvent{State: state})
	})

	s.scanner = NewScanner(central, s.list, opts...)
	s.scanner.OnStarted(func() {
		s.events.Publish(ScanStartedEvent{})
	})
	s.scanner.OnFound(func(p Peripheral) {
		s.events.Publish(PeripheralDiscoveredEvent{Peripheral: p})
	})
	s.scanner.OnStopped(func(n int) {
		s.events.Publish(ScanStoppedEvent{Peripherals: n})
	})

	s.connector = NewConnector(central, opts...)
	s.reader = NewReader(central, opts...)

	return s
}

// Mount requests the scan permission and starts observing the adapter
// state. A denied permission disables scanning for the life of the session.
func (s *Session) Mount(ctx context.Context) {
	permitted := s.gate.Request(ctx)
	if !permitted {
		s.log.Error("permission denied")
	}

	s.lck.Lock()
	s.permitted = permitted
	s.lck.Unlock()

	if err := s.observer.Start(ctx); err != nil {
		s.log.Warn("observe adapter state", "error", err)
	}
}

func (s *Session) Permitted() bool {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.permitted
}

func (s *Session) AdapterState() AdapterState {
	return s.observer.State()
}

// Peripherals returns the discovered peripherals in first-seen order.
func (s *Session) Peripherals() []Peripheral {
	return s.list.All()
}

// Events streams session events until ctx is done or the session is closed.
func (s *Session) Events(ctx context.Context) iter.Seq2[Event, error] {
	return s.events.Subscribe(ctx)
}

// StartScan starts a timed scan in the background. The scan outlives ctx's
// caller and is only cut short by Close.
func (s *Session) StartScan(ctx context.Context) {
	if s.central == nil {
		s.log.Error("start scan", "error", ErrNoClient)
		return
	}

	if !s.Permitted() {
		s.log.Debug("scan disabled", "reason", "permission denied")
		return
	}

	if err := s.scanner.Start(s.ctx); err != nil {
		s.log.Warn("start scan", "error", err)
	}
}

func (s *Session) Scanning() bool {
	return s.scanner.Scanning()
}

// WaitScan blocks until the active scan has stopped.
func (s *Session) WaitScan() {
	s.scanner.Wait()
}

// Connect connects to the peripheral with the given id. Failures are logged
// with their message only.
func (s *Session) Connect(ctx context.Context, id string) {
	made, err := s.connector.Connect(ctx, id)
	if made {
		s.lck.Lock()
		s.connected[id] = true
		s.lck.Unlock()
	}

	if err != nil {
		s.log.Error("error connecting to device", "id", id, "error", err.Error())
		s.events.Publish(FailureEvent{Op: "connect", PeripheralID: id, Err: err})
		return
	}

	s.events.Publish(ConnectedEvent{PeripheralID: id})
}

// ReadCharacteristic reads and decodes one characteristic. The second result
// is false when the read failed.
func (s *Session) ReadCharacteristic(
	ctx context.Context,
	id string,
	service, characteristic uuid.UUID,
	label string,
) (string, bool) {
	ev, ok := s.read(ctx, id, Sensor{
		Label:          label,
		Service:        service,
		Characteristic: characteristic,
	}, false)
	return ev.Value, ok
}

func (s *Session) ReadHumidity(ctx context.Context, id string) (string, bool) {
	ev, ok := s.read(ctx, id, s.sensors.Humidity, false)
	return ev.Value, ok
}

func (s *Session) ReadBattery(ctx context.Context, id string) (string, bool) {
	ev, ok := s.read(ctx, id, s.sensors.Battery, false)
	return ev.Value, ok
}

// ReadLight reads the light characteristic as a list of numbers.
func (s *Session) ReadLight(ctx context.Context, id string) ([]float64, bool) {
	ev, ok := s.read(ctx, id, s.sensors.Light, true)
	return ev.Numbers, ok
}

// read publishes the reading it returns. Numbers are only parsed when numeric
// is set.
func (s *Session) read(ctx context.Context, id string, sensor Sensor, numeric bool) (ReadingEvent, bool) {
	value, err := s.reader.Read(ctx, id, sensor)
	if err != nil {
		s.log.Error("error reading "+sensor.Label, "id", id, "error", err.Error())
		s.events.Publish(FailureEvent{Op: "read " + sensor.Label, PeripheralID: id, Err: err})
		return ReadingEvent{}, false
	}

	ev := ReadingEvent{
		PeripheralID: id,
		Label:        sensor.Label,
		Value:        value,
	}
	if numeric {
		ev.Numbers = ParseNumbers(value)
	}
	s.events.Publish(ev)

	return ev, true
}

// Close stops any scan, releases the state subscription, disconnects the
// peripherals this session connected and closes the BLE client.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// streams end first so no publish holds up the scan goroutine.
		s.events.Shutdown()
		s.scanner.Stop()
		s.observer.Close()

		var errs []error
		if s.central != nil {
			s.lck.Lock()
			ids := make([]string, 0, len(s.connected))
			for id := range s.connected {
				ids = append(ids, id)
			}
			s.connected = make(map[string]bool)
			s.lck.Unlock()

			for _, id := range ids {
				if err := s.central.Disconnect(id); err != nil && !errors.Is(err, ErrNotConnected) {
					s.log.Warn("disconnect", "id", id, "error", err)
				}
			}

			if err := s.central.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		if err := errors.Join(errs...); err != nil {
			s.closeErr = poop.Chain(err)
		}
	})
	return s.closeErr
}
