package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"droneDispatchService/internal/app"
	"droneDispatchService/internal/db"
	"droneDispatchService/internal/lifecycle"
	"droneDispatchService/internal/logging"
	"droneDispatchService/repository"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the starting fleet into an empty database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := offlineConfig()
		if err != nil {
			return err
		}
		if seedFile == "" {
			seedFile = cfg.Seed.File
		}
		d, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer d.Close()
		n, err := app.SeedFleet(context.Background(), repository.NewDroneRepository(d), seedFile, logging.New("seed"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d drones\n", n)
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one lifecycle sweep against the local database",
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
		s := lifecycle.NewScheduler(repository.NewDroneRepository(d), cfg.Scheduler.Interval,
			lifecycle.WithLogger(logging.New("lifecycle")))
		res, err := s.Tick(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "drones=%d transitions=%d conflicts=%d failures=%d\n",
			res.Drones, res.Transitions, res.Conflicts, res.Failures)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "fleet YAML file (default: built-in fleet)")
	rootCmd.AddCommand(seedCmd, tickCmd)
}
