// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
)

// AppendActivity adds an entry to the activity log.
func (r *Repository) AppendActivity(ctx context.Context, accountID int64, action string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_log (account_id, action, created_at) VALUES (?, ?, ?)`,
		accountID, action, at.UTC())
	return wrapError(err)
}

// ListActivity returns the newest entries for an account first.
func (r *Repository) ListActivity(ctx context.Context, accountID int64, limit int) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	err := r.db.SelectContext(ctx, &events,
		`SELECT * FROM activity_log WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// HasActivity checks whether an action was ever recorded for an account.
func (r *Repository) HasActivity(ctx context.Context, accountID int64, action string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM activity_log WHERE account_id = ? AND action = ?)`, accountID, action)
	return exists, err
}
