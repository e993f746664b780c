package cmd

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/chunkcast/internal/app"
	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start the chunkcast server.

The server listens on server.address and runs until it receives SIGINT or
SIGTERM, then closes every open stream and shuts down within
server.graceful_shutdown_timeout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		return runServer(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}
	cfg, err := config.LoadConfig(abs)
	if err != nil {
		return nil, fmt.Errorf("loading configuration from %s: %w", abs, err)
	}
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		if err := appLogger.CloseLogFiles(); err != nil {
			// The app logger may be the thing that failed.
			log.Printf("Error closing log files during shutdown: %v", err)
		}
	}()

	a, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize server", logger.LogFields{"error": err.Error()})
		return err
	}
	appLogger.Info("Starting server", logger.LogFields{"address": *cfg.Server.Address})
	if err := a.Run(); err != nil {
		appLogger.Error("Server exited with an error", logger.LogFields{"error": err.Error()})
		return err
	}
	appLogger.Info("Server has shut down gracefully")
	return nil
}
