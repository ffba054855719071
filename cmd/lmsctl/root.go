package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lms/internal/app"
	"github.com/p-n-ai/pai-lms/internal/platform/config"
)

var rootCmd = &cobra.Command{
	Use:          "lmsctl",
	Short:        "Operate the course progress engine",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("storage", "", "Storage backend, postgres or memory (overrides LEARN_STORAGE)")
	rootCmd.PersistentFlags().String("content", "", "Content directory for memory storage (overrides LEARN_CONTENT_PATH)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(exportCmd)
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("storage"); v != "" {
		cfg.Storage = v
	}
	if v, _ := cmd.Flags().GetString("content"); v != "" {
		cfg.ContentPath = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp wires the app for one command run.
func openApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
