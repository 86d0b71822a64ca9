package sensorscan

import (
	"fmt"
	"strings"

	"github.com/kellegous/poop"
)

// AdapterState mirrors the power state reported by the Bluetooth adapter.
type AdapterState byte

const (
	AdapterStateUnknown AdapterState = iota
	AdapterStateResetting
	AdapterStateUnsupported
	AdapterStateUnauthorized
	AdapterStatePoweredOff
	AdapterStatePoweredOn
)

var adapterStateNames = [...]string{
	AdapterStateUnknown:      "Unknown",
	AdapterStateResetting:    "Resetting",
	AdapterStateUnsupported:  "Unsupported",
	AdapterStateUnauthorized: "Unauthorized",
	AdapterStatePoweredOff:   "PoweredOff",
	AdapterStatePoweredOn:    "PoweredOn",
}

func (s AdapterState) String() string {
	if int(s) < len(adapterStateNames) {
		return adapterStateNames[s]
	}
	return fmt.Sprintf("AdapterState(%d)", s)
}

// ParseAdapterState accepts the names returned by String, case-insensitively.
func ParseAdapterState(s string) (AdapterState, error) {
	for i, name := range adapterStateNames {
		if strings.EqualFold(name, s) {
			return AdapterState(i), nil
		}
	}
	return AdapterStateUnknown, poop.Newf("unknown adapter state %q", s)
}

// IsPoweredOn reports whether the adapter can scan and connect.
func (s AdapterState) IsPoweredOn() bool {
	return s == AdapterStatePoweredOn
}
