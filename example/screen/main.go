package main

import (
	"context"
	"errors"
	"flag"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kellegous/poop"
	"golang.org/x/sync/errgroup"

	"github.com/kellegous/sensorscan"
	"github.com/kellegous/sensorscan/backend"
	"github.com/kellegous/sensorscan/config"
	"github.com/kellegous/sensorscan/logging"
	"github.com/kellegous/sensorscan/screen"
)

type Flags struct {
	ConfigPath string
	LogPath    string
}

func main() {
	if err := run(context.Background()); err != nil {
		poop.HitFan(err)
	}
}

func run(ctx context.Context) error {
	var flags Flags
	flag.StringVar(&flags.ConfigPath, "config", "sensorscan.yaml", "path to the config file")
	flag.StringVar(&flags.LogPath, "log", "sensorscan.log", "log file used while the screen is up")
	flag.Parse()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return poop.Chain(err)
	}

	// the screen owns the terminal
	switch cfg.Logger.Output {
	case "", "stderr", "stdout":
		cfg.Logger.Output = flags.LogPath
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

	perms, ok := cfg.Requester()
	if !ok {
		perms = &screen.PromptRequester{In: os.Stdin, Out: os.Stdout}
	}

	session := sensorscan.NewSession(
		b.Central,
		b.States,
		perms,
		append(cfg.Options(), sensorscan.WithLogger(log))...)
	defer session.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := session.Events(ctx)
	session.Mount(ctx)

	program := tea.NewProgram(screen.New(ctx, session), tea.WithAltScreen())

	var g errgroup.Group
	g.Go(func() error {
		err := screen.Forward(events, program.Send)
		if errors.Is(err, context.Canceled) || errors.Is(err, sensorscan.ErrShutdown) {
			return nil
		}
		return poop.Chain(err)
	})
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		return poop.Chain(err)
	})

	return poop.Chain(g.Wait())
}
