package main

import (
	"fmt"

	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "launch-bridge [command]",
		Short:         "Hand dashboard users off to a destination app with a fresh token",
		Long:          `launch-bridge serves the dashboard API that mints short-lived tokens from the signed-in session and builds the handoff URL for the destination application.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel == "" {
				return nil
			}
			return log.SetLogLevel(logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (error, warn, info, debug, trace); overrides LOG_LEVEL")

	cmd.AddCommand(
		serveCmd(),
		configCmd(),
		inspectCmd(),
		usersCmd(),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), BuildVersion)
			return nil
		},
	}
}
