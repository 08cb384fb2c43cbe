package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dgellow/launch-bridge/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check a config file",
	}
	cmd.AddCommand(configInitCmd(), configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a starter config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}

			f, err := os.OpenFile(path, flags, 0644)
			if err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("%s already exists, use --force to overwrite", path)
				}
				return fmt.Errorf("failed to write config file: %w", err)
			}
			defer f.Close()

			if _, err := io.WriteString(f, config.Example); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a config file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), args[0])
		},
	}
}

func validateConfig(out io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(out, "Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Fprintf(out, "  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Fprintf(out, "  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Fprintf(out, "  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Fprintf(out, "  - %s\n", warn.Message)
			}
		}
	}

	fmt.Fprintln(out)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(out, "Result: PASS")
	case len(result.Errors) == 0:
		fmt.Fprintln(out, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(out, "Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}
