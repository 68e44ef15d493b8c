package main

import (
	"strconv"

	"github.com/cldrn/dataverse/shared/config"
	"github.com/cldrn/dataverse/user-service/internal/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(cfg config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	run := func(fn func(cmd *cobra.Command, r *migrations.Runner, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(config.DatabaseURL); err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			r, err := migrations.New(db, newLogger(cfg))
			if err != nil {
				return err
			}
			return fn(cmd, r, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, r *migrations.Runner, _ []string) error {
				return r.Up(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down [version]",
			Short: "Roll back the latest migration, or down to version",
			Args:  cobra.MaximumNArgs(1),
			RunE: run(func(cmd *cobra.Command, r *migrations.Runner, args []string) error {
				var target int64
				if len(args) == 1 {
					v, err := strconv.ParseInt(args[0], 10, 64)
					if err != nil {
						return err
					}
					target = v
				}
				return r.Down(cmd.Context(), target)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, r *migrations.Runner, _ []string) error {
				return r.Status(cmd.Context())
			}),
		},
	)
	return cmd
}
