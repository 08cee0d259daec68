// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package commands

import (
	"context"
	"database/sql"
	"fmt"
	"text/tabwriter"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/database"
	"codeberg.org/psuyearbook/yearbook-api/internal/server"
	"github.com/urfave/cli/v3"
)

type migrateFunc func(context.Context, *sql.DB) ([]database.Migration, error)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			migrateStep("up", "Apply all pending migrations", "applied", database.RunMigrations),
			migrateStep("down", "Roll back the last migration", "rolled back", database.MigrateDown),
			migrateStep("reset", "Roll back all migrations", "rolled back", database.MigrateReset),
			{
				Name:  "status",
				Usage: "Show the migration status",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDB(cmd, func(db *sql.DB) error {
						status, err := database.MigrationStatus(ctx, db)
						if err != nil {
							return err
						}
						w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
						_, _ = fmt.Fprintln(w, "VERSION\tMIGRATION\tAPPLIED")
						for _, m := range status {
							applied := "pending"
							if m.Applied {
								applied = m.AppliedAt.Format(time.DateTime)
							}
							_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
						}
						return w.Flush()
					})
				},
			},
		},
	}
}

func migrateStep(name, usage, verb string, fn migrateFunc) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withDB(cmd, func(db *sql.DB) error {
				done, err := fn(ctx, db)
				for _, m := range done {
					_, _ = fmt.Fprintf(out(cmd), "%s %s\n", verb, m.Name)
				}
				if err != nil {
					return fmt.Errorf("migrate %s: %w", name, err)
				}
				if len(done) == 0 {
					_, _ = fmt.Fprintln(out(cmd), "nothing to do")
				}
				return nil
			})
		},
	}
}

// withDB opens the configured database without migrating it.
func withDB(cmd *cli.Command, fn func(*sql.DB) error) error {
	cfg := config.NewFromCLI(cmd)
	server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Connect(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return fn(db.DB)
}
