// Package bluez reports the power state of a BlueZ adapter over the system
// D-Bus.
package bluez

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/kellegous/poop"

	"github.com/kellegous/sensorscan"
)

const (
	busName            = "org.bluez"
	adapterIface       = "org.bluez.Adapter1"
	deviceIface        = "org.bluez.Device1"
	propertiesIface    = "org.freedesktop.DBus.Properties"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propertiesChanged  = propertiesIface + ".PropertiesChanged"
	interfacesAdded    = objectManagerIface + ".InterfacesAdded"
	interfacesRemoved  = objectManagerIface + ".InterfacesRemoved"
)

// StateProvider is a sensorscan.StateProvider for one BlueZ adapter, such
// as "hci0".
type StateProvider struct {
	conn     *dbus.Conn
	ownsConn bool
	path     dbus.ObjectPath
	log      *slog.Logger
	notifier *sensorscan.Notifier[sensorscan.AdapterState]

	lck     sync.Mutex
	last    sensorscan.AdapterState
	signals chan *dbus.Signal
	stop    chan struct{}
	done    chan struct{}
	closed  bool
}

var _ sensorscan.StateProvider = (*StateProvider)(nil)

// NewStateProvider connects to the system bus.
func NewStateProvider(adapter string, log *slog.Logger) (*StateProvider, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, poop.Chain(err)
	}
	p := NewStateProviderWithConn(conn, adapter, log)
	p.ownsConn = true
	return p, nil
}

// NewStateProviderWithConn uses an existing bus connection. The connection
// is not closed by Close.
func NewStateProviderWithConn(conn *dbus.Conn, adapter string, log *slog.Logger) *StateProvider {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StateProvider{
		conn:     conn,
		path:     dbus.ObjectPath("/org/bluez/" + adapter),
		log:      log,
		notifier: sensorscan.NewNotifier[sensorscan.AdapterState](),
	}
}

func (p *StateProvider) getProperty(ctx context.Context, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := p.conn.Object(busName, p.path).
		CallWithContext(ctx, propertiesIface+".Get", 0, adapterIface, name).
		Store(&v)
	return v, err
}

// devicePath is the object BlueZ exports for a device address under the
// adapter, e.g. /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(adapter dbus.ObjectPath, addr string) dbus.ObjectPath {
	return adapter + "/dev_" + dbus.ObjectPath(strings.ToUpper(strings.ReplaceAll(addr, ":", "_")))
}

// DeviceConnected reads Device1.Connected for the device with the given
// address. A device BlueZ no longer knows is not connected.
func (p *StateProvider) DeviceConnected(ctx context.Context, addr string) (bool, error) {
	var v dbus.Variant
	err := p.conn.Object(busName, devicePath(p.path, addr)).
		CallWithContext(ctx, propertiesIface+".Get", 0, deviceIface, "Connected").
		Store(&v)
	if err != nil {
		if dbusErrorName(err) == "org.freedesktop.DBus.Error.UnknownObject" {
			return false, nil
		}
		return false, poop.Chain(err)
	}

	connected, ok := v.Value().(bool)
	if !ok {
		return false, poop.Newf("Connected has unexpected type %T", v.Value())
	}
	return connected, nil
}

// State reads PowerState, which BlueZ has exposed since 5.66, and falls back
// to Powered on older daemons.
func (p *StateProvider) State(ctx context.Context) (sensorscan.AdapterState, error) {
	if v, err := p.getProperty(ctx, "PowerState"); err == nil {
		if s, ok := v.Value().(string); ok {
			return StateFromPowerState(s), nil
		}
	}

	v, err := p.getProperty(ctx, "Powered")
	if err != nil {
		if state, ok := stateFromError(err); ok {
			return state, nil
		}
		return sensorscan.AdapterStateUnknown, poop.Chain(err)
	}

	powered, ok := v.Value().(bool)
	if !ok {
		return sensorscan.AdapterStateUnknown, poop.Newf("Powered has unexpected type %T", v.Value())
	}
	return StateFromPowered(powered), nil
}

func (p *StateProvider) OnStateChange(fn func(sensorscan.AdapterState), emitCurrent bool) (func(), error) {
	if err := p.watch(); err != nil {
		return nil, poop.Chain(err)
	}

	unsub := p.notifier.Subscribe(fn)

	if emitCurrent {
		state, err := p.State(context.Background())
		if err != nil {
			p.log.Warn("query adapter state", "adapter", p.path, "error", err)
		}
		p.lck.Lock()
		p.last = state
		p.lck.Unlock()
		fn(state)
	}

	return unsub, nil
}

func (p *StateProvider) matchOptions() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(p.path),
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchInterface(objectManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchInterface(objectManagerIface),
			dbus.WithMatchMember("InterfacesRemoved"),
		},
	}
}

func (p *StateProvider) watch() error {
	p.lck.Lock()
	defer p.lck.Unlock()

	if p.closed {
		return poop.Chain(sensorscan.ErrShutdown)
	}

	if p.signals != nil {
		return nil
	}

	for _, opts := range p.matchOptions() {
		if err := p.conn.AddMatchSignal(opts...); err != nil {
			return poop.Chain(err)
		}
	}

	p.signals = make(chan *dbus.Signal, 16)
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.conn.Signal(p.signals)

	go p.loop(p.signals, p.stop, p.done)

	return nil
}

func (p *StateProvider) loop(signals <-chan *dbus.Signal, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig == nil {
				continue
			}
			if state, ok := p.stateFromSignal(sig); ok {
				p.publish(state)
			}
		case <-stop:
			return
		}
	}
}

func (p *StateProvider) stateFromSignal(sig *dbus.Signal) (sensorscan.AdapterState, bool) {
	switch sig.Name {
	case propertiesChanged:
		if sig.Path != p.path || len(sig.Body) < 2 {
			return 0, false
		}
		if iface, ok := sig.Body[0].(string); !ok || iface != adapterIface {
			return 0, false
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return 0, false
		}
		return stateFromChanged(changed)
	case interfacesRemoved:
		if len(sig.Body) < 2 {
			return 0, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || path != p.path {
			return 0, false
		}
		ifaces, ok := sig.Body[1].([]string)
		if !ok || !slices.Contains(ifaces, adapterIface) {
			return 0, false
		}
		return sensorscan.AdapterStateUnsupported, true
	case interfacesAdded:
		if len(sig.Body) < 2 {
			return 0, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || path != p.path {
			return 0, false
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return 0, false
		}
		props, ok := ifaces[adapterIface]
		if !ok {
			return 0, false
		}
		if state, ok := stateFromChanged(props); ok {
			return state, true
		}
		return sensorscan.AdapterStateUnknown, true
	}
	return 0, false
}

func (p *StateProvider) publish(state sensorscan.AdapterState) {
	p.lck.Lock()
	if state == p.last {
		p.lck.Unlock()
		return
	}
	p.last = state
	p.lck.Unlock()

	p.log.Debug("adapter state changed", "adapter", p.path, "state", state)
	p.notifier.Notify(state)
}

// Close stops watching for changes and, if the provider dialed the bus
// itself, closes the connection.
func (p *StateProvider) Close() error {
	p.lck.Lock()
	if p.closed {
		p.lck.Unlock()
		return nil
	}
	p.closed = true
	signals, stop, done := p.signals, p.stop, p.done
	p.signals = nil
	p.lck.Unlock()

	if signals != nil {
		p.conn.RemoveSignal(signals)
		for _, opts := range p.matchOptions() {
			p.conn.RemoveMatchSignal(opts...)
		}
		close(stop)
		<-done
	}

	if p.ownsConn {
		return poop.Chain(p.conn.Close())
	}
	return nil
}
