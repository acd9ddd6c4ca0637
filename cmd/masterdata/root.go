package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "masterdata",
	Short: "Runtime-defined master data schemas with a generic record API",
	Long: `masterdata lets you define entity schemas at runtime and manage their
records through one generic API, with type coercion and cross-schema
reference checks.

Quick start:
  masterdata schema apply -f schemas.yaml   # Register schemas
  masterdata serve                          # Start the HTTP API

Management:
  masterdata schema    # Manage schemas
  masterdata group     # Manage schema groups
  masterdata record    # Manage records
  masterdata validate  # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "masterdata.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of errors only")
}
