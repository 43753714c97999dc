// Package main provides the main entry point for the sales training admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mohankp/sales-enablement-training/cmd/adm/commands"
	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/database"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// Set default config file if not already set
	if os.Getenv(config.ConfigFileEnv) == "" {
		defaultPaths := []string{
			"../../config.yaml", // From cmd/adm/
			"config.yaml",       // Current directory
		}
		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv(config.ConfigFileEnv, path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set %s environment variable: %v\n", config.ConfigFileEnv, err)
					return 1
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Disable all OpenTelemetry features for admin CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "sales-trainer-admin", "error")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		observability.ShutdownProviders(shutdownCtx, tp, mp, logger)
	}()

	// The admin tool never migrates implicitly; use `adm db migrate`
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": commands.MaskDatabaseURL(cfg.Database.URL)})
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	userService := services.NewUserServiceWithLogger(db, cfg, logger)
	kbService := services.NewKnowledgeBaseService(db, cfg, logger)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Sales Training Administration Tool",
		Long: `Sales Training Administration Tool

Administers the sales enablement training backend: accounts, the
knowledge base and the database schema.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.UserCommands(userService, logger, cfg))
	rootCmd.AddCommand(commands.KnowledgeBaseCommands(kbService, logger))
	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, logger, db))

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
