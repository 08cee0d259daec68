// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package commands defines the command line interface: the server and the
// registrar's operator tasks.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/server"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Root returns the application command. Without a subcommand it serves the
// API.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "yearbook-api",
		Usage:   "PSU Yearbook account authentication and recovery API",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			accountCommand(),
			adminCommand(),
			recoveryCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the API server",
		Action: server.Run,
	}
}

// withApp runs fn with wired services and closes them afterwards.
func withApp(ctx context.Context, cmd *cli.Command, fn func(*server.App) error) error {
	cfg := config.NewFromCLI(cmd)
	server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	return fn(app)
}

// out is where command results are printed.
func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
