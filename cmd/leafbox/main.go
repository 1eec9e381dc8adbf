// LeafBox Core - plant watering backend
//
// This is the main entry point for the LeafBox Core application. It serves
// the REST API and dashboard WebSocket, and bridges the ESP watering
// devices over MQTT.
//
// Commands:
//   - serve: run the server until SIGINT/SIGTERM
//   - migrate up|down|status: manage the database schema
//   - user create: add a dashboard account
//   - plant-info import: load plant reference records
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/leafbox/leafbox-core/migrations"

	"github.com/leafbox/leafbox-core/internal/infrastructure/config"
	"github.com/leafbox/leafbox-core/internal/infrastructure/database"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The --config flag is shared by
// every subcommand.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "leafbox",
		Short:         "LeafBox Core - plant watering backend",
		Long:          `LeafBox Core stores plants and readings, configures the ESP watering devices over MQTT and serves the dashboard.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", getConfigPath(),
		"path to the YAML configuration file (env LEAFBOX_CONFIG)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newUserCmd(load),
		newPlantInfoCmd(load),
	)
	return root
}

// configLoader loads and validates the configuration selected by --config.
type configLoader func() (*config.Config, error)

// getConfigPath returns the configuration file path.
// Uses LEAFBOX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LEAFBOX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the configured SQLite database.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
