package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/mongoremodel/internal/app/report"
	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

func newQueueStatusCmd(opts *globalOptions) *cobra.Command {
	var (
		expected int64
		notify   bool
	)

	cmd := &cobra.Command{
		Use:   "queue-status",
		Short: "Show pending work descriptors per method queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, opts, "queue-status", "")
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			var n migration.Notifier
			if notify {
				n = rt.notifier()
			}
			r := report.New(rt.queueStore(), n, rt.log)

			methods := append(migration.Methods(migration.RoleProducer), migration.Methods(migration.RoleConsumer)...)
			st, err := r.Collect(ctx, methods)
			if err != nil {
				return err
			}
			if err := report.Render(os.Stdout, st, expected); err != nil {
				return err
			}
			return r.Announce(ctx, st)
		},
	}

	cmd.Flags().Int64Var(&expected, "expected", 0, "total panels dispatched, shown as pending / expected")
	cmd.Flags().BoolVar(&notify, "notify", true, "send a notification when work is pending")
	return cmd
}
