package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/mongoremodel/internal/app/dispatch"
	"github.com/ahrav/mongoremodel/internal/domain/migration"
	"github.com/ahrav/mongoremodel/internal/infra/mongo"
	"github.com/ahrav/mongoremodel/pkg/common"
)

func newDispatchCmd(opts *globalOptions) *cobra.Command {
	var (
		scope      string
		lookupUIDs bool
		lookupRPS  float64
	)

	cmd := &cobra.Command{
		Use:   "dispatch <panels_file> <log_file>",
		Short: "Push panel work descriptors onto the method queues",
		Long: `Push one work descriptor per panel onto every producer and/or consumer queue.

Re-running appends duplicates. Run "remodel reset" first when re-dispatching.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := dispatch.ParseScope(scope)
			if err != nil {
				return err
			}
			panels, err := migration.ReadPanelFile(args[0])
			if err != nil {
				return err
			}
			if len(panels) == 0 {
				return fmt.Errorf("no panels in %s", args[0])
			}
			return runDispatch(cmd.Context(), opts, args[1], panels, sc, lookupUIDs, lookupRPS)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(dispatch.ScopeBoth), "producers, consumers or both")
	cmd.Flags().BoolVar(&lookupUIDs, "lookup-uids", false,
		"bound producer ranges by the max uid in <panel>.userDetails on the source mongo")
	cmd.Flags().Float64Var(&lookupRPS, "lookup-rps", 5, "max uid lookups per second")
	return cmd
}

func runDispatch(
	parent context.Context,
	opts *globalOptions,
	logFile string,
	panels []string,
	scope dispatch.Scope,
	lookupUIDs bool,
	lookupRPS float64,
) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, os.Interrupt)
	defer stop()

	rt, err := newRuntime(ctx, opts, "dispatch", logFile)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	var uids migration.UIDSource
	if lookupUIDs {
		if rt.cfg.SourceMongoURI == "" {
			return fmt.Errorf("--lookup-uids needs src_mongo_uri in the config")
		}
		client, err := mongo.Connect(ctx, rt.cfg.SourceMongoURI)
		if err != nil {
			rt.log.Error(ctx, "Source mongo unavailable", "error", err)
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		uids = mongo.NewUIDLookup(client, common.NewRateLimiter(lookupRPS, 1), rt.tracer)
	}

	report, err := dispatch.New(rt.queueStore(), uids, rt.tracer, rt.log).Dispatch(ctx, panels, scope)
	if err != nil {
		rt.log.Error(ctx, "Dispatch failed", "error", err, "enqueued", report.Enqueued)
		return err
	}

	rt.log.Info(ctx, "Dispatch complete",
		"panels", report.Panels,
		"enqueued", report.Enqueued,
		"unresolved", report.Unresolved,
		"invalid", report.Invalid,
	)
	fmt.Printf("enqueued %d descriptors for %d panels\n", report.Enqueued,
		report.Panels-len(report.Unresolved)-len(report.Invalid))
	for _, p := range report.Invalid {
		fmt.Printf("skipped %q: invalid panel name\n", p)
	}
	for _, p := range report.Unresolved {
		fmt.Printf("skipped %s: no uid high-water mark\n", p)
	}
	return nil
}
