package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"droneDispatchService/internal/app"
	"droneDispatchService/internal/config"
	"droneDispatchService/internal/logging"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "drone-dispatch",
	Short:        "Drone dispatch decision engine and lifecycle scheduler",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC service, scheduler and metrics endpoint",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("CONFIG_FILE"), "YAML configuration file")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig requires a real JWT secret unless APP_ENV=dev.
func loadConfig() (*config.Config, error) {
	if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		return config.LoadWithDefaults(cfgPath)
	}
	return config.Load(cfgPath)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New("main")
	log.Info().Stringer("config", cfg).Msg("configuration loaded")

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("service close")
		}
	}()
	return svc.Run(ctx)
}

// offlineConfig is for commands that never serve or verify tokens.
func offlineConfig() (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
