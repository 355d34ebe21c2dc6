// Package cli implements the sqlverify command-line harness: apply a
// rewrite proposal to a query, or run the full verification pipeline over
// one or more proposals.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sqlverify/internal/config"
)

// envPrefix maps flags to environment variables (e.g. --driver becomes
// SQLVERIFY_DRIVER).
const envPrefix = "SQLVERIFY_"

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "sqlverify",
		Short:         "Verify semantic equivalence of proposed SQL rewrites",
		Long:          "Checks a proposed SQL rewrite against the original query: structural checks first, then execution over synthetic witness data.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyEnvDefaults(cmd.Flags())
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg := &config.Config{LogLevel: logLevel}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newVerifyCmd())

	return rootCmd
}

// applyEnvDefaults fills unset flags from SQLVERIFY_* environment
// variables. Flag > env > default.
func applyEnvDefaults(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		envName := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v := os.Getenv(envName); v != "" {
			_ = f.Value.Set(v)
		}
	})
}
