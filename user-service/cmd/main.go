package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/cldrn/dataverse/shared/config"
	"github.com/cldrn/dataverse/shared/logger"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

const serviceName = "user-service"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.New("8082")

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "User administration service: accounts, roles, groups and the disable cascade",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("log-level", cfg.LogLevel(), "log level (debug, info, warn, error)")
	root.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if cmd.Flags().Changed("log-level") {
			level, _ := cmd.Flags().GetString("log-level")
			cfg.Set(config.LogLevel, level)
		}
	}

	root.AddCommand(newServeCmd(cfg), newMigrateCmd(cfg))
	return root
}

// openDB connects to the write store and verifies the connection.
func openDB(ctx context.Context, cfg config.Configuration) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func newLogger(cfg config.Configuration) *slog.Logger {
	return logger.New(serviceName, cfg.LogLevel())
}
