package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/kellegous/poop"
	"golang.org/x/sync/errgroup"

	"github.com/kellegous/sensorscan"
	"github.com/kellegous/sensorscan/backend"
	"github.com/kellegous/sensorscan/config"
	"github.com/kellegous/sensorscan/logging"
)

func main() {
	if err := run(context.Background()); err != nil {
		poop.HitFan(err)
	}
}

func run(ctx context.Context) error {
	var configPath string
	var window time.Duration
	flag.StringVar(&configPath, "config", "sensorscan.yaml", "path to the config file")
	flag.DurationVar(&window, "window", 0, "scan window, overrides the config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return poop.Chain(err)
	}
	if window > 0 {
		cfg.Scan.Window = window
	}

	log, closeLog, err := logging.New(cfg.Logger)
	if err != nil {
		return poop.Chain(err)
	}
	defer closeLog()

	b, err := backend.Open(cfg, log)
	if err != nil {
		return poop.Chain(err)
	}
	defer b.Close()

	session := sensorscan.NewSession(
		b.Central,
		b.States,
		sensorscan.StaticRequester(sensorscan.PermissionGranted),
		append(cfg.Options(), sensorscan.WithLogger(log))...)
	defer session.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := session.Events(ctx)
	session.Mount(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for ev, err := range events {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return poop.Chain(err)
			}

			switch ev := ev.(type) {
			case sensorscan.StateChangedEvent:
				fmt.Printf("Bluetooth Status: %s\n", ev.State)
			case sensorscan.PeripheralDiscoveredEvent:
				fmt.Printf("%s %s (rssi %d)\n", ev.Peripheral.ID, ev.Peripheral.DisplayName(), ev.Peripheral.RSSI)
			case sensorscan.ScanStoppedEvent:
				fmt.Printf("scan stopped, %d peripherals\n", ev.Peripherals)
				return nil
			}
		}
		return nil
	})
	g.Go(func() error {
		session.StartScan(ctx)
		if !session.Scanning() {
			cancel()
			return poop.New("scan did not start")
		}
		session.WaitScan()
		return nil
	})

	return poop.Chain(g.Wait())
}
