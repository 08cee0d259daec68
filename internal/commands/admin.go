// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package commands

import (
	"context"
	"fmt"

	"codeberg.org/psuyearbook/yearbook-api/internal/server"
	"github.com/urfave/cli/v3"
)

func adminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Manage administrators",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an administrator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("ADMIN_PASSWORD")},
					&cli.StringFlag{Name: "display-name"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cmd, func(app *server.App) error {
						admin, err := app.Auth.CreateAdministrator(ctx,
							cmd.String("username"), cmd.String("password"), cmd.String("display-name"))
						if err != nil {
							return err
						}
						_, err = fmt.Fprintf(out(cmd), "created administrator %d (%s)\n", admin.ID, admin.Username)
						return err
					})
				},
			},
		},
	}
}
