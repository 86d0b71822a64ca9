package bluez

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kellegous/sensorscan"
)

func TestStateFromPowerState(t *testing.T) {
	tests := map[string]sensorscan.AdapterState{
		"on":           sensorscan.AdapterStatePoweredOn,
		"off":          sensorscan.AdapterStatePoweredOff,
		"off-enabling": sensorscan.AdapterStateResetting,
		"on-disabling": sensorscan.AdapterStateResetting,
		"off-blocked":  sensorscan.AdapterStateUnauthorized,
		"":             sensorscan.AdapterStateUnknown,
		"sideways":     sensorscan.AdapterStateUnknown,
	}
	for in, expected := range tests {
		assert.Equal(t, expected, StateFromPowerState(in), "power state %q", in)
	}
}

func TestStateFromChanged(t *testing.T) {
	t.Run("power state wins", func(t *testing.T) {
		state, ok := stateFromChanged(map[string]dbus.Variant{
			"Powered":    dbus.MakeVariant(true),
			"PowerState": dbus.MakeVariant("off-enabling"),
		})
		require.True(t, ok)
		assert.Equal(t, sensorscan.AdapterStateResetting, state)
	})

	t.Run("powered", func(t *testing.T) {
		state, ok := stateFromChanged(map[string]dbus.Variant{
			"Powered": dbus.MakeVariant(false),
		})
		require.True(t, ok)
		assert.Equal(t, sensorscan.AdapterStatePoweredOff, state)
	})

	t.Run("unrelated", func(t *testing.T) {
		_, ok := stateFromChanged(map[string]dbus.Variant{
			"Discovering": dbus.MakeVariant(true),
		})
		assert.False(t, ok)
	})
}

func TestStateFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected sensorscan.AdapterState
		ok       bool
	}{
		{
			name:     "no daemon",
			err:      dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"},
			expected: sensorscan.AdapterStateUnsupported,
			ok:       true,
		},
		{
			name:     "no adapter",
			err:      &dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownObject"},
			expected: sensorscan.AdapterStateUnsupported,
			ok:       true,
		},
		{
			name:     "wrapped access denied",
			err:      fmt.Errorf("get: %w", dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}),
			expected: sensorscan.AdapterStateUnauthorized,
			ok:       true,
		},
		{
			name:     "other",
			err:      errors.New("broken pipe"),
			expected: sensorscan.AdapterStateUnknown,
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, ok := stateFromError(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, state)
		})
	}
}

func TestStateFromSignal(t *testing.T) {
	p := NewStateProviderWithConn(nil, "hci0", nil)

	tests := []struct {
		name     string
		sig      *dbus.Signal
		expected sensorscan.AdapterState
		ok       bool
	}{
		{
			name: "properties changed",
			sig: &dbus.Signal{
				Name: propertiesChanged,
				Path: "/org/bluez/hci0",
				Body: []any{
					adapterIface,
					map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)},
					[]string{},
				},
			},
			expected: sensorscan.AdapterStatePoweredOn,
			ok:       true,
		},
		{
			name: "other adapter",
			sig: &dbus.Signal{
				Name: propertiesChanged,
				Path: "/org/bluez/hci1",
				Body: []any{
					adapterIface,
					map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)},
				},
			},
		},
		{
			name: "other interface",
			sig: &dbus.Signal{
				Name: propertiesChanged,
				Path: "/org/bluez/hci0",
				Body: []any{
					"org.bluez.Device1",
					map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)},
				},
			},
		},
		{
			name: "adapter removed",
			sig: &dbus.Signal{
				Name: interfacesRemoved,
				Body: []any{
					dbus.ObjectPath("/org/bluez/hci0"),
					[]string{propertiesIface, adapterIface},
				},
			},
			expected: sensorscan.AdapterStateUnsupported,
			ok:       true,
		},
		{
			name: "adapter added",
			sig: &dbus.Signal{
				Name: interfacesAdded,
				Body: []any{
					dbus.ObjectPath("/org/bluez/hci0"),
					map[string]map[string]dbus.Variant{
						adapterIface: {"PowerState": dbus.MakeVariant("off")},
					},
				},
			},
			expected: sensorscan.AdapterStatePoweredOff,
			ok:       true,
		},
		{
			name: "device added",
			sig: &dbus.Signal{
				Name: interfacesAdded,
				Body: []any{
					dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"),
					map[string]map[string]dbus.Variant{
						"org.bluez.Device1": {},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, ok := p.stateFromSignal(tt.sig)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, state)
			}
		})
	}
}

func TestPublishDropsRepeats(t *testing.T) {
	p := NewStateProviderWithConn(nil, "hci0", nil)

	var seen []sensorscan.AdapterState
	unsub := p.notifier.Subscribe(func(s sensorscan.AdapterState) {
		seen = append(seen, s)
	})
	defer unsub()

	p.publish(sensorscan.AdapterStatePoweredOn)
	p.publish(sensorscan.AdapterStatePoweredOn)
	p.publish(sensorscan.AdapterStatePoweredOff)

	assert.Equal(t, []sensorscan.AdapterState{
		sensorscan.AdapterStatePoweredOn,
		sensorscan.AdapterStatePoweredOff,
	}, seen)
}

func TestCloseWithoutWatch(t *testing.T) {
	p := NewStateProviderWithConn(nil, "hci0", nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.OnStateChange(func(sensorscan.AdapterState) {}, false)
	assert.ErrorIs(t, err, sensorscan.ErrShutdown)
}

func TestDevicePath(t *testing.T) {
	p := NewStateProviderWithConn(nil, "hci0", nil)
	assert.Equal(t,
		dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"),
		devicePath(p.path, "aa:bb:cc:dd:ee:ff"))
}
