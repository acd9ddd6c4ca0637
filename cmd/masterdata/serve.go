package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/masterdata/bootstrap"
	"github.com/artpar/masterdata/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the masterdata HTTP server.

The server will:
  - Load configuration from masterdata.yaml (or --config)
  - Or load configuration from MASTERDATA_* environment variables
  - Open and migrate the database
  - Build the accessor cache from persisted schemas
  - Serve the schema and record API

Environment variables (for Docker deployments):
  MASTERDATA_DATABASE_DSN       - Database path (default: masterdata.db)
  MASTERDATA_SERVER_PORT        - Server port (default: 8080)
  MASTERDATA_LOG_LEVEL          - Log level: debug, info, warn, error
  MASTERDATA_CACHE_WATCH_STORE  - Resync when another process writes the database

Examples:
  masterdata serve
  masterdata serve --config /etc/masterdata/config.yaml
  masterdata serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload logging.level when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if _, statErr := os.Stat(cfgFile); statErr == nil && hotReload {
		if err := app.WatchConfig(cfgFile); err != nil {
			app.Logger.Warn().Err(err).Msg("config hot reload disabled")
		}
	}

	// Run (blocks until shutdown)
	return app.Run()
}
