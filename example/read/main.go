package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kellegous/poop"

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
	flag.StringVar(&configPath, "config", "sensorscan.yaml", "path to the config file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s <peripheral-id>\n", os.Args[0])
		os.Exit(1)
	}
	id := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		return poop.Chain(err)
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

	session.Mount(ctx)

	// the central only connects to peripherals it has seen advertise
	session.StartScan(ctx)
	deadline := time.After(cfg.Scan.Window)
	for !seen(session, id) {
		select {
		case <-deadline:
			return poop.Newf("%s not found", id)
		case <-time.After(250 * time.Millisecond):
		}
	}

	session.Connect(ctx, id)

	humidity, ok := session.ReadHumidity(ctx, id)
	if ok {
		fmt.Printf("humidity: %s\n", humidity)
	}

	battery, ok := session.ReadBattery(ctx, id)
	if ok {
		fmt.Printf("battery: %s\n", battery)
	}

	light, ok := session.ReadLight(ctx, id)
	if ok {
		fmt.Printf("light: %v\n", light)
	}

	return nil
}

func seen(session *sensorscan.Session, id string) bool {
	for _, p := range session.Peripherals() {
		if p.ID == id {
			return true
		}
	}
	return false
}
