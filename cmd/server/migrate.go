package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"droneDispatchService/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := offlineConfig()
		if err != nil {
			return err
		}
		d, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer d.Close()
		versions, err := db.AppliedVersions(context.Background(), d)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied migrations: %v\n", versions)
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := offlineConfig()
		if err != nil {
			return err
		}
		d, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer d.Close()
		v, err := db.RollbackLast(d)
		if err != nil {
			return err
		}
		if v == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back migration %04d\n", v)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(migrateCmd)
}
