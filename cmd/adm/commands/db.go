// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/database"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, logger *observability.Logger, db *sql.DB) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the sales training backend.

Available commands:
  stats   - Show row counts per table
  migrate - Apply pending schema migrations`,
	}

	dbCmd.AddCommand(statsCmd(logger, db))
	dbCmd.AddCommand(migrateCmd(dbManager, logger, db))

	return dbCmd
}

func statsCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			logger.Info(ctx, "Diagnostic info", map[string]interface{}{
				"config_file": os.Getenv(config.ConfigFileEnv),
				"database":    getDatabaseInfo(db),
			})

			counts, err := database.TableCounts(ctx, db)
			if err != nil {
				logger.Error(ctx, "Failed to collect table counts", err, nil)
				return contextutils.WrapError(err, "failed to collect table counts")
			}

			printTableCounts(cmd, counts)
			return nil
		},
	}
}

func printTableCounts(cmd *cobra.Command, counts map[string]int) {
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-22s %10s\n", "Table", "Rows")
	for _, table := range tables {
		fmt.Fprintf(out, "%-22s %10d\n", table, counts[table])
	}
}

func migrateCmd(dbManager *database.Manager, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if err := dbManager.RunMigrations(ctx, db); err != nil {
				logger.Error(ctx, "Migration failed", err, nil)
				return contextutils.WrapError(err, "migration failed")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}
