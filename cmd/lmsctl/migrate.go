package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lms/internal/platform/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Storage != "postgres" {
			return fmt.Errorf("migrate needs postgres storage, got %q", cfg.Storage)
		}

		ctx := cmd.Context()
		db, err := database.New(ctx, cfg.Database.URL, 2, 0)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}
