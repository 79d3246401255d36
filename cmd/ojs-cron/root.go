package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openjobspec/ojs-cron/internal/core"
	"github.com/openjobspec/ojs-cron/internal/examples"
	"github.com/openjobspec/ojs-cron/internal/metrics"
	"github.com/openjobspec/ojs-cron/internal/runner"
	"github.com/openjobspec/ojs-cron/internal/server"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ojs-cron",
		Short:         "Run periodic jobs on a tick-driven scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newRuncronsCmd(),
		newServeCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ojs-cron version %s\n", core.Version)
			},
		},
	)
	return cmd
}

// app is the wiring shared by every command.
type app struct {
	cfg      server.Config
	logger   *slog.Logger
	registry *core.Registry
	backend  *server.Backend
	metrics  *metrics.Metrics
	runner   *runner.Runner
}

func newApp(ctx context.Context) (*app, error) {
	cfg := server.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	registry := core.NewRegistry()
	if err := examples.Register(registry, cfg.OutputFile, nil); err != nil {
		return nil, fmt.Errorf("registering jobs: %w", err)
	}

	backend, err := server.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	m.Init(core.Version, cfg.Store)

	opts := []runner.Option{
		runner.WithLocker(backend.Locker),
		runner.WithLogger(logger),
		runner.WithObserver(m),
	}
	for _, o := range backend.Observers {
		opts = append(opts, runner.WithObserver(o))
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		backend:  backend,
		metrics:  m,
		runner:   runner.New(backend.Store, opts...),
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Error("failed to close backend", "error", err)
	}
}
