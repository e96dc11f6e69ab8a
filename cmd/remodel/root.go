package main

import (
	"github.com/spf13/cobra"

	"github.com/ahrav/mongoremodel/internal/config"
	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "remodel",
		Short:         "Panel migration orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath,
		"properties file holding store and binary locations")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"minimum log level (debug, info, warn, error); overrides log_level")

	root.AddCommand(
		newLaunchCmd(opts, migration.RoleProducer),
		newLaunchCmd(opts, migration.RoleConsumer),
		newWatchdogCmd(opts),
		newDispatchCmd(opts),
		newQueueStatusCmd(opts),
		newResetCmd(opts),
	)
	return root
}
