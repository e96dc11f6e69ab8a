package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/mongoremodel/internal/infra/storage/redis"
)

func newResetCmd(opts *globalOptions) *cobra.Command {
	var (
		yes   bool
		scope redis.ResetScope
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete work queues, status hashes and offset snapshots before a fresh run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete orchestration state without --yes")
			}
			if !scope.Queues && !scope.Statuses && !scope.Snapshots {
				scope = redis.ResetAll
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts, "reset", "")
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			rep, err := redis.NewResetter(rt.redis, rt.tracer).Reset(ctx, scope)
			if err != nil {
				rt.log.Error(ctx, "Reset failed", "error", err)
				return err
			}
			rt.log.Info(ctx, "Orchestration state reset",
				"queues", rep.Queues,
				"statuses", rep.Statuses,
				"snapshots", rep.Snapshots,
			)
			fmt.Printf("deleted %d queues, %d status hashes, %d offset snapshots\n", rep.Queues, rep.Statuses, rep.Snapshots)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	cmd.Flags().BoolVar(&scope.Queues, "queues", false, "only delete work queues")
	cmd.Flags().BoolVar(&scope.Statuses, "statuses", false, "only delete status hashes")
	cmd.Flags().BoolVar(&scope.Snapshots, "snapshots", false, "only delete offset snapshots")
	return cmd
}
