// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
)

// CreateAdministrator creates a new administrator.
func (r *Repository) CreateAdministrator(ctx context.Context, username, passwordHash, displayName string) (*models.Administrator, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO administrators (username, password_hash, display_name) VALUES (?, ?, ?)`,
		username, passwordHash, displayName)
	if err != nil {
		return nil, wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetAdministratorByID(ctx, id)
}

// GetAdministratorByID retrieves an administrator by ID.
func (r *Repository) GetAdministratorByID(ctx context.Context, id int64) (*models.Administrator, error) {
	var admin models.Administrator
	if err := r.db.GetContext(ctx, &admin, `SELECT * FROM administrators WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &admin, nil
}

// GetAdministratorByUsername retrieves an administrator by username.
func (r *Repository) GetAdministratorByUsername(ctx context.Context, username string) (*models.Administrator, error) {
	var admin models.Administrator
	if err := r.db.GetContext(ctx, &admin, `SELECT * FROM administrators WHERE username = ?`, username); err != nil {
		return nil, wrapError(err)
	}
	return &admin, nil
}
