package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lokutor-ai/companion/pkg/desktop"
	"github.com/lokutor-ai/companion/pkg/logging"
	"github.com/lokutor-ai/companion/pkg/orchestrator"
	"github.com/lokutor-ai/companion/pkg/providers"
	"github.com/lokutor-ai/companion/pkg/settings"
)

func newRunCommand() *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the companion with a console front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompanion(cmd.Context(), noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload settings when the file changes")
	return cmd
}

func runCompanion(parent context.Context, noWatch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	zl := logging.NewZapLogger(logger)

	if err := settings.LoadDotEnv(); err != nil {
		zl.Debug("no .env file loaded", "error", err)
	}

	store := settings.NewStore(configPath, zl.With("component", "settings"))
	fileSettings, err := store.Load()
	if err != nil {
		return err
	}

	builder := providers.NewBuilder(zl.With("component", "providers"))
	orch := orchestrator.NewWithLogger(
		settings.WithEnvCredentials(fileSettings),
		builder.Build,
		desktop.NewActiveWindow(),
		orchestrator.DefaultConfig(),
		zl.With("component", "orchestrator"),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	apply := func(s settings.Settings) {
		orch.ApplySettings(settings.WithEnvCredentials(s))
	}
	reload := func() error {
		s, err := store.Read()
		if err != nil {
			return err
		}
		apply(s)
		return nil
	}

	console := NewConsole(os.Stdin, os.Stdout, orch, reload)

	g.Go(func() error {
		return orch.Run(ctx)
	})
	g.Go(func() error {
		console.Render(orch.Events())
		return nil
	})
	g.Go(func() error {
		return console.ReadLoop(ctx)
	})

	if !noWatch {
		watcher, err := settings.NewWatcher(store, zl.With("component", "watcher"))
		if err != nil {
			zl.Warn("settings file will not be watched", "error", err)
		} else {
			watcher.Prime(fileSettings)
			g.Go(func() error {
				defer watcher.Stop()
				if err := watcher.Start(ctx, apply); err != nil {
					zl.Warn("settings file will not be watched", "error", err)
					return nil
				}
				<-ctx.Done()
				return nil
			})
		}
	}

	err = g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}
