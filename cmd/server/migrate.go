package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/hacking-zone/internal/config"
	"github.com/and161185/hacking-zone/internal/migrate"
)

const migrateTimeout = 2 * time.Minute

var errNotPostgres = errors.New("migrations apply to store.driver=postgres only")

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.migrate(cmd.Context(), migrate.Up)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.migrate(cmd.Context(), migrate.Status)
			},
		},
	)
	return cmd
}

func (a *app) migrate(ctx context.Context, run func(context.Context, string, *zap.Logger) error) error {
	if a.cfg.Store.Driver != config.DriverPostgres {
		return errNotPostgres
	}
	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()
	return run(ctx, a.cfg.Store.DSN, a.log)
}
