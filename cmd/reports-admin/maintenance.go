package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/mmk-reports-api/internal/adapters/reaper"
	"github.com/target/mmk-reports-api/internal/bootstrap"
	"github.com/target/mmk-reports-api/internal/migrate"
)

const defaultMigrationTimeout = 5 * time.Minute

func newMigrateCmd() *cobra.Command {
	var (
		timeout time.Duration
		status  bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply pending schema migrations.

With --status, list the embedded migrations and whether each one has been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return withDatabase(cc, func(db *sql.DB) error {
				if status {
					return printMigrationStatus(ctx, cmd, db)
				}
				if err := bootstrap.RunMigrations(ctx, db, cc.Logger); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "Abort after this long")
	cmd.Flags().BoolVar(&status, "status", false, "Show migration status instead of applying")
	return cmd
}

func printMigrationStatus(ctx context.Context, cmd *cobra.Command, db *sql.DB) error {
	available, err := migrate.Available()
	if err != nil {
		return err
	}
	applied, err := migrate.Applied(ctx, db)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	w := newTable(cmd.OutOrStdout())
	if err := writeln(w, "VERSION\tAPPLIED"); err != nil {
		return err
	}
	for _, m := range available {
		if err := writef(w, "%s\t%t\n", m.Version, done[m.Version]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func newReapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one reaper pass",
		Long: `Fail stale PROCESSING jobs and delete finished jobs past retention, using the REAPER_* settings.

Pending jobs are never re-dispatched from the CLI; that needs a running service with workers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cc, func(svcs bootstrap.ServiceContainer) error {
				reaperCfg := cc.Config.Reaper
				reaperCfg.PendingRedispatchAge = 0
				runner, err := reaper.NewRunner(reaper.RunnerOptions{
					Reports: svcs.Reports,
					Config:  reaperCfg,
					Logger:  cc.Logger,
				})
				if err != nil {
					return err
				}
				if err := runner.RunOnce(cmd.Context()); err != nil {
					return fmt.Errorf("reaper pass: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "reaper pass complete")
				return err
			})
		},
	}
}
