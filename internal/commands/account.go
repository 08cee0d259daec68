// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package commands

import (
	"context"
	"fmt"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/server"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"github.com/urfave/cli/v3"
)

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage student accounts",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Provision a student account with its security-question records",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "student-number", Required: true, Usage: "Student number used to log in"},
					&cli.StringFlag{Name: "password", Usage: "Initial password (defaults to the student number)"},
					&cli.StringFlag{Name: "email", Usage: "Verification email on file"},
					&cli.BoolFlag{Name: "verified", Usage: "Skip first-time verification"},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
					&cli.StringFlag{Name: "course", Usage: "Department or course, answer to the course question"},
					&cli.IntFlag{Name: "batch-year"},
					&cli.StringFlag{Name: "mother-lastname", Usage: "Answer to the mother's last name question"},
					&cli.StringFlag{Name: "barangay", Usage: "Answer to the barangay question"},
				},
				Action: createAccount,
			},
		},
	}
}

func createAccount(ctx context.Context, cmd *cli.Command) error {
	params := auth.ProvisionParams{
		StudentNumber: cmd.String("student-number"),
		Password:      cmd.String("password"),
		Email:         cmd.String("email"),
		Verified:      cmd.Bool("verified"),
	}
	profile := models.StudentProfile{
		FirstName:      cmd.String("first-name"),
		LastName:       cmd.String("last-name"),
		Department:     cmd.String("course"),
		BatchYear:      int(cmd.Int("batch-year")),
		MotherLastname: cmd.String("mother-lastname"),
		Barangay:       cmd.String("barangay"),
	}
	if profile != (models.StudentProfile{}) {
		params.Profile = &profile
	}

	return withApp(ctx, cmd, func(app *server.App) error {
		acc, err := app.Auth.ProvisionAccount(ctx, params)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out(cmd), "created account %d for %s (%s)\n", acc.ID, acc.StudentNumber, acc.Status)
		return err
	})
}
