// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/server"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/recovery"
	"github.com/urfave/cli/v3"
)

func recoveryCommand() *cli.Command {
	decisionFlags := []cli.Flag{
		&cli.StringFlag{Name: "admin", Required: true, Usage: "Username of the deciding administrator"},
		&cli.StringFlag{Name: "notes", Usage: "Notes sent to the student"},
	}

	return &cli.Command{
		Name:  "recovery",
		Usage: "Review account recovery requests",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recovery requests",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Value: string(models.RecoveryPending), Usage: "pending_admin, approved, denied, closed or empty for all"},
				},
				Action: listRecovery,
			},
			{
				Name:      "approve",
				Usage:     "Approve a request and reset the password to the student number",
				ArgsUsage: "<request-id>",
				Flags:     decisionFlags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return decideRecovery(ctx, cmd, (*recovery.Service).Approve)
				},
			},
			{
				Name:      "deny",
				Usage:     "Deny a request",
				ArgsUsage: "<request-id>",
				Flags:     decisionFlags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return decideRecovery(ctx, cmd, (*recovery.Service).Deny)
				},
			},
		},
	}
}

func listRecovery(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(app *server.App) error {
		reqs, err := app.Recovery.ListRequests(ctx, models.RecoveryStatus(cmd.String("status")))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSTUDENT\tSTATUS\tCREATED\tEVIDENCE\tMESSAGE")
		for _, r := range reqs {
			evidence := 0
			if r.IDProofRef != "" {
				evidence++
			}
			if r.SelfieProofRef != "" {
				evidence++
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
				r.ID, r.StudentNumber, r.Status, r.CreatedAt.Format(time.DateTime), evidence, r.Message)
		}
		return w.Flush()
	})
}

type decideFunc func(s *recovery.Service, ctx context.Context, adminID, requestID int64, notes string) (*recovery.Decision, error)

func decideRecovery(ctx context.Context, cmd *cli.Command, decide decideFunc) error {
	requestID, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("request id is required: %w", apperr.ErrInvalidInput)
	}

	return withApp(ctx, cmd, func(app *server.App) error {
		admin, err := app.Repo.GetAdministratorByUsername(ctx, cmd.String("admin"))
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("administrator %q: %w", cmd.String("admin"), apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}

		d, err := decide(app.Recovery, ctx, admin.ID, requestID, cmd.String("notes"))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out(cmd), "request %d is now %s\n", d.Request.ID, d.Request.Status)
		if d.NotifyErr != nil {
			_, _ = fmt.Fprintf(out(cmd), "warning: student was not notified: %v\n", d.NotifyErr)
		}
		return err
	})
}
