// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migration is one schema version.
type Migration struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

func newProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, db, fsys)
}

// RunMigrations applies all pending migrations and returns them.
func RunMigrations(ctx context.Context, db *sql.DB) ([]Migration, error) {
	p, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	return fromResults(results, true), err
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *sql.DB) ([]Migration, error) {
	p, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	result, err := p.Down(ctx)
	if result == nil {
		return nil, err
	}
	return fromResults([]*goose.MigrationResult{result}, false), err
}

// MigrateReset rolls back every migration, newest first.
func MigrateReset(ctx context.Context, db *sql.DB) ([]Migration, error) {
	p, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	results, err := p.DownTo(ctx, 0)
	return fromResults(results, false), err
}

// MigrationStatus lists every known migration in version order.
func MigrationStatus(ctx context.Context, db *sql.DB) ([]Migration, error) {
	p, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	states, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(states))
	for _, s := range states {
		out = append(out, Migration{
			Version:   s.Source.Version,
			Name:      path.Base(s.Source.Path),
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

func fromResults(results []*goose.MigrationResult, applied bool) []Migration {
	out := make([]Migration, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Migration{
			Version: r.Source.Version,
			Name:    path.Base(r.Source.Path),
			Applied: applied,
		})
	}
	return out
}
