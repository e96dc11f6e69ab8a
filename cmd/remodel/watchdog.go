package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/mongoremodel/internal/app/watchdog"
	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/process"
	"github.com/ahrav/mongoremodel/internal/infra/storage/redis"
	"github.com/ahrav/mongoremodel/pkg/common/timeutil"
)

func newWatchdogCmd(opts *globalOptions) *cobra.Command {
	var (
		panelsFile string
		env        string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "watchdog <log_file>",
		Short: "Terminate consumers whose producer finished and whose group has drained",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var panels []string
			if panelsFile != "" {
				var err error
				if panels, err = migration.ReadPanelFile(panelsFile); err != nil {
					return err
				}
			}
			return runWatchdog(cmd.Context(), opts, args[0], panels, env, once)
		},
	}

	cmd.Flags().StringVar(&panelsFile, "panels", "", "file listing the panels to watch (default: every consumer panel)")
	cmd.Flags().StringVar(&env, "env", "", "only consider consumers reporting this env (default: env from config)")
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func runWatchdog(parent context.Context, opts *globalOptions, logFile string, panels []string, env string, once bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, os.Interrupt)
	defer stop()

	rt, err := newRuntime(ctx, opts, "watchdog", logFile)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	if env == "" {
		env = rt.cfg.Env
	}

	inspector, err := rt.offsetInspector(ctx)
	if err != nil {
		rt.log.Error(ctx, "Failed to set up offset inspector", "error", err)
		return err
	}

	metrics, err := watchdog.NewWatchdogMetrics(rt.providers.Meter)
	if err != nil {
		return fmt.Errorf("creating watchdog metrics: %w", err)
	}

	clock := timeutil.Default()
	w := watchdog.New(watchdog.Config{
		Panels:   panels,
		Env:      env,
		Interval: rt.cfg.Timing.WatchdogInterval,
	}, watchdog.Deps{
		Status:   rt.statusStore(),
		Offsets:  inspector,
		Movement: watchdog.NewMovementTracker(redis.NewSnapshotStore(rt.redis, rt.tracer)),
		Terminate: watchdog.NewTerminator(
			process.NewTable(), clock, rt.cfg.Timing.KillGrace, rt.cfg.Timing.KillPoll, rt.log,
		),
		Notifier: rt.notifier(),
		Clock:    clock,
		Metrics:  metrics,
		Tracer:   rt.tracer,
		Logger:   rt.log,
	})

	if once {
		report, err := w.RunCycle(ctx)
		if err != nil {
			return err
		}
		rt.log.Info(ctx, "Watchdog cycle complete",
			"evaluated", report.Evaluated,
			"terminated", report.Terminated,
			"skipped", report.Skipped,
		)
		return nil
	}

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		rt.log.Info(ctx, "Watchdog stopped")
		return nil
	}
	rt.log.Error(ctx, "Watchdog failed", "error", err)
	return err
}
