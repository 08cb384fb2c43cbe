package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/dgellow/launch-bridge/internal/introspect"
	"github.com/spf13/cobra"
)

func inspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [token|-]",
		Short: "Decode a token without verifying it",
		Long:  `Decodes the header and claims of a JWT and prints the fields the destination app relies on. The signature is never checked. Reads the token from stdin when the argument is "-" or missing.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 && args[0] != "-" {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read token from stdin: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)

			report, err := introspect.Inspect(token)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			for _, line := range report.Lines() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if report.ExpiresAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Expired: %t\n", report.Expired(time.Now()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}
