package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/logger"
)

var (
	verbose bool
	logg    = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:          "gatectl",
	Short:        "Inspect and operate the approval gate",
	Long:         `gatectl resolves account status, evaluates gate decisions, applies moderation decisions and migrates the schema.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		if verbose {
			logg = logger.New(logger.Options{ServiceName: "gatectl", Level: "debug", Format: logger.FormatConsole, Output: cmd.ErrOrStderr()})
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	rootCmd.AddCommand(newEvaluateCmd(), newResolveCmd(), newModerateCmd(), newMigrateCmd())
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
