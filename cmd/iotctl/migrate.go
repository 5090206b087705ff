package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/septivank/iot-telemetry-hub/internal/config"
	"github.com/septivank/iot-telemetry-hub/internal/db"
	"github.com/septivank/iot-telemetry-hub/migrations"
	"github.com/spf13/cobra"
)

// migrateCmd applies the embedded schema to DATABASE_URL
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the telemetry and ticket tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.RequireDatabase); err != nil {
				return err
			}

			sqlDB, err := sql.Open("postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", db.MaskPassword(cfg.Database.URL), err)
			}
			defer sqlDB.Close()

			applied, err := migrations.Apply(cmd.Context(), sqlDB)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
