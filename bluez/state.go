package bluez

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/kellegous/sensorscan"
)

// StateFromPowerState maps the Adapter1.PowerState property. "off-blocked"
// means rfkill keeps the radio off, which the user has to lift.
func StateFromPowerState(s string) sensorscan.AdapterState {
	switch s {
	case "on":
		return sensorscan.AdapterStatePoweredOn
	case "off":
		return sensorscan.AdapterStatePoweredOff
	case "off-enabling", "on-disabling":
		return sensorscan.AdapterStateResetting
	case "off-blocked":
		return sensorscan.AdapterStateUnauthorized
	}
	return sensorscan.AdapterStateUnknown
}

func StateFromPowered(powered bool) sensorscan.AdapterState {
	if powered {
		return sensorscan.AdapterStatePoweredOn
	}
	return sensorscan.AdapterStatePoweredOff
}

// stateFromChanged extracts the adapter state from a PropertiesChanged
// payload. PowerState wins over Powered when both are present.
func stateFromChanged(changed map[string]dbus.Variant) (sensorscan.AdapterState, bool) {
	if v, ok := changed["PowerState"]; ok {
		if s, ok := v.Value().(string); ok {
			return StateFromPowerState(s), true
		}
	}
	if v, ok := changed["Powered"]; ok {
		if b, ok := v.Value().(bool); ok {
			return StateFromPowered(b), true
		}
	}
	return sensorscan.AdapterStateUnknown, false
}

func dbusErrorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Name
	}
	return ""
}

// stateFromError turns the errors BlueZ gives for a missing or forbidden
// adapter into a state. ok is false for any other error.
func stateFromError(err error) (sensorscan.AdapterState, bool) {
	switch dbusErrorName(err) {
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.NameHasNoOwner":
		return sensorscan.AdapterStateUnsupported, true
	case "org.freedesktop.DBus.Error.AccessDenied",
		"org.bluez.Error.NotAuthorized":
		return sensorscan.AdapterStateUnauthorized, true
	}
	return sensorscan.AdapterStateUnknown, false
}
