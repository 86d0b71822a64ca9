// Package backend opens the BLE central and adapter state provider named by
// the config.
package backend

import (
	"errors"
	"log/slog"

	"github.com/kellegous/poop"
	"tinygo.org/x/bluetooth"

	"github.com/kellegous/sensorscan"
	sensorscan_bluetooth "github.com/kellegous/sensorscan/bluetooth"
	"github.com/kellegous/sensorscan/bluez"
	"github.com/kellegous/sensorscan/config"
	"github.com/kellegous/sensorscan/gatt"
)

// Backend is an open central with its state provider. The session closes
// Central; Close releases the rest.
type Backend struct {
	Central sensorscan.Central
	States  sensorscan.StateProvider
	close   func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return poop.Chain(b.close())
}

// Open creates the backend named by cfg.Backend.
func Open(cfg *config.Config, log *slog.Logger) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendTinyGo:
		return openTinyGo(cfg, log)
	case config.BackendGatt:
		return openGatt(log)
	}
	return nil, poop.Newf("unknown backend %q", cfg.Backend)
}

func openTinyGo(cfg *config.Config, log *slog.Logger) (*Backend, error) {
	b := &Backend{}
	opts := []sensorscan_bluetooth.Option{sensorscan_bluetooth.WithLogger(log)}

	// The adapter still works without D-Bus; the screen just shows an
	// unknown state.
	states, err := bluez.NewStateProvider(cfg.Adapter, log)
	if err != nil {
		log.Warn("adapter state unavailable", "adapter", cfg.Adapter, "error", err)
	} else {
		b.States = states
		b.close = states.Close
		opts = append(opts, sensorscan_bluetooth.WithLinkCheck(states.DeviceConnected))
	}

	client, err := sensorscan_bluetooth.NewClient(bluetooth.DefaultAdapter, opts...)
	if err != nil {
		return nil, poop.Chain(errors.Join(err, b.Close()))
	}

	b.Central = client
	return b, nil
}

func openGatt(log *slog.Logger) (*Backend, error) {
	client, err := gatt.NewClient(log)
	if err != nil {
		return nil, poop.Chain(err)
	}
	return &Backend{Central: client, States: client}, nil
}
