package main

import (
	"fmt"

	"github.com/dgellow/launch-bridge/internal"
	"github.com/dgellow/launch-bridge/internal/config"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log.LogInfoWithFields("main", "Starting launch-bridge", map[string]any{
				"version": BuildVersion,
				"config":  configPath,
			})

			app, err := internal.NewLaunchBridge(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
