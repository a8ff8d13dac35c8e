package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-accounts/persistence"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates the account tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		db, err := persistence.Open(cmd.Context(), persistence.Config{
			Driver:       cfg.Database.Driver,
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := persistence.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		cmd.Println("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
