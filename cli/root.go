// Package cli holds the rsi-tracker command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-cycle-tracker/app"
	"rsi-cycle-tracker/config"
	"rsi-cycle-tracker/database"
)

var version = "dev"

// NewRootCmd builds the rsi-tracker command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rsi-tracker",
		Short: "RSI signal scanner and trade cycle tracker",
		Long: `rsi-tracker scans daily price history for RSI signals, tracks
buy-to-sell trade cycles with a 5% trailing stop and serves the dashboard API.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importPricesCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// Execute runs the command line and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rsi-tracker version %s\n", version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			log, err := app.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			return app.New(cfg, log).Start()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and seed default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, log, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			defer log.Sync()

			if err := app.Migrate(db, log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Schema is up to date")
			return nil
		},
	}
}

// openStore loads the configuration and connects to the cycle store.
func openStore() (*config.Config, *database.Database, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := app.ConnectDatabase(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, log, nil
}
