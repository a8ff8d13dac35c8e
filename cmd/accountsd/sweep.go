package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sweepCmd removes accounts that never verified their email
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Removes not activated accounts older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		a, err := newApp(cmd.Context(), cfg, newLogger(cfg.Env))
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.lifecycle.RemoveNotActivatedUsers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d not activated accounts\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
