package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dgellow/launch-bridge/internal"
	"github.com/dgellow/launch-bridge/internal/config"
	"github.com/dgellow/launch-bridge/internal/storage"
	"github.com/spf13/cobra"
)

func usersCmd() *cobra.Command {
	var configPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users who signed in to the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			store, err := internal.OpenStorage(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			users, err := store.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), users)
			}
			return writeUsers(cmd.OutOrStdout(), users)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print users as JSON")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func writeUsers(out io.Writer, users []storage.User) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tUSERNAME\tEMAIL\tLAST SEEN\tLAST LAUNCH\tLAUNCHES")
	for _, u := range users {
		lastLaunch := "never"
		if u.LastLaunch != nil {
			lastLaunch = u.LastLaunch.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			u.UserID, u.Username, u.Email, u.LastSeen.UTC().Format(time.RFC3339), lastLaunch, u.Launches)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
