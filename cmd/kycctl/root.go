package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"kycflow/internal/app"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/logger"
)

// commandContext carries the persistent flags to subcommands.
type commandContext struct {
	logLevel  string
	logFormat string
}

// load reads the environment configuration, applies mutate and wires the
// application. Logs go to stderr so command output stays parseable.
func (c *commandContext) load(ctx context.Context, stderr io.Writer, mutate func(*config.Config)) (*app.App, error) {
	cfg := config.FromEnv()
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if mutate != nil {
		mutate(&cfg)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}
	return a, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "kycctl",
		Short:         "Operate KYC verification flows",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "text", "Log format (json, text)")

	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newStepsCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newReportsCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
