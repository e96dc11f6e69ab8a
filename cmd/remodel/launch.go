package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/mongoremodel/internal/app/launcher"
	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/process"
	"github.com/ahrav/mongoremodel/pkg/common/timeutil"
)

func newLaunchCmd(opts *globalOptions, role migration.Role) *cobra.Command {
	var (
		methods            string
		customPropertyFile string
	)

	cmd := &cobra.Command{
		Use:   string(role) + " <log_file>",
		Short: fmt.Sprintf("Drain the %s method queues, one migration subprocess per method at a time", role),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := migration.ParseMethods(role, methods)
			if err != nil {
				return err
			}
			if customPropertyFile != "" {
				if _, err := os.Stat(customPropertyFile); err != nil {
					return fmt.Errorf("custom property file: %w", err)
				}
			}
			return runLaunchers(cmd.Context(), opts, role, args[0], selected, customPropertyFile)
		},
	}

	cmd.Flags().StringVar(&methods, "methods", "",
		"comma separated methods to run (default: every "+string(role)+" method)")
	if role == migration.RoleConsumer {
		cmd.Flags().StringVar(&customPropertyFile, "custom-property-file", "",
			"run the custom migration binary with this property file")
	}
	return cmd
}

func runLaunchers(
	parent context.Context,
	opts *globalOptions,
	role migration.Role,
	logFile string,
	methods []migration.Method,
	customPropertyFile string,
) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	rt, err := newRuntime(ctx, opts, string(role), logFile)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	metrics, err := launcher.NewLauncherMetrics(rt.providers.Meter)
	if err != nil {
		return fmt.Errorf("creating launcher metrics: %w", err)
	}

	registry := launcher.NewRegistry()
	procs := process.NewTable()
	deps := launcher.Deps{
		Queue:    rt.queueStore(),
		Status:   rt.statusStore(),
		Spawner:  process.NewExecSpawner(nil, nil, rt.log),
		Procs:    procs,
		Registry: registry,
		Builder: launcher.CommandBuilder{
			Binary:             rt.cfg.MigrationBinary,
			CustomBinary:       rt.cfg.MigrationBinaryCustom,
			CustomPropertyFile: customPropertyFile,
		},
		Clock: timeutil.Default(),
		Timing: launcher.Timing{
			SettleDelay:          rt.cfg.Timing.SettleDelay,
			RegistrationRetries:  rt.cfg.Timing.RegistrationRetries,
			RegistrationInterval: rt.cfg.Timing.RegistrationInterval,
			ExitPollInterval:     rt.cfg.Timing.ExitPollInterval,
			Cooldown:             rt.cfg.Timing.Cooldown,
		},
		Metrics: metrics,
		Tracer:  rt.tracer,
		Logger:  rt.log,
	}

	// SIGTERM is forwarded to every tracked child before the launchers stop,
	// so registered PIDs are still present when the handler reads them.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			rt.log.Info(ctx, "Shutdown signal received, forwarding to children", "signal", sig)
			n := registry.Forward(ctx, procs, syscall.SIGTERM, rt.log)
			rt.log.Info(ctx, "Forwarded shutdown", "children", n)
			cancel()
		case <-ctx.Done():
		}
	}()

	rt.log.Info(ctx, "Starting launchers", "role", role, "methods", methods)
	err = launcher.NewPool(methods, deps).Run(ctx)
	switch {
	case err == nil:
		rt.log.Info(ctx, "All queues drained")
		return nil
	case errors.Is(err, context.Canceled):
		rt.log.Info(ctx, "Launchers stopped")
		return nil
	default:
		rt.log.Error(ctx, "Launcher pool failed", "error", err)
		return err
	}
}
