package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/masterdata/adapters/sqlite"
	"github.com/artpar/masterdata/config"
	"github.com/artpar/masterdata/core/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [schema-file...]",
	Short: "Validate configuration and schema files before deployment",
	Long: `Validate the masterdata configuration file and, optionally, schema files.

Checks:
  - YAML syntax is valid
  - Settings are within range
  - Database opens and migrates (with --check-database)
  - Each schema file parses and is structurally valid

Examples:
  masterdata validate
  masterdata validate --check-database
  masterdata validate schemas/*.yaml`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check that the database opens and migrates")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	var cfg *config.Config
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  - Config file not found, using environment\n")
		cfg, err = config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(out, "  %s Environment config valid\n", crossMark)
			return fmt.Errorf("config error: %w", err)
		}
	} else {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(out, "  %s Config valid\n", crossMark)
			return fmt.Errorf("config error: %w", err)
		}
	}
	fmt.Fprintf(out, "  %s Config valid (listen %s, database %s)\n", checkMark, cfg.Server.Addr(), cfg.Database.DSN)

	if validateCheckDatabase {
		db, err := sqlite.Open(cfg.Database.DSN)
		if err == nil {
			err = db.Migrate()
			db.Close()
		}
		if err != nil {
			fmt.Fprintf(out, "  %s Database usable\n", crossMark)
			return fmt.Errorf("database error: %w", err)
		}
		fmt.Fprintf(out, "  %s Database usable\n", checkMark)
	}

	failed := 0
	for _, path := range args {
		defs, err := schema.ParseFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  %s %s: %v\n", crossMark, path, err)
			continue
		}
		fmt.Fprintf(out, "  %s %s (%d schemas)\n", checkMark, path, len(defs))
	}
	if failed > 0 {
		return fmt.Errorf("%d schema file(s) invalid", failed)
	}

	fmt.Fprintln(out, "\nValidation passed")
	return nil
}
