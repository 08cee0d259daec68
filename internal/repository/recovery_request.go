// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
)

// CloseResolvedRecoveryRequests marks the account's approved and denied
// requests as closed. Pending requests are left alone.
func (r *Repository) CloseResolvedRecoveryRequests(ctx context.Context, accountID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recovery_requests SET status = ? WHERE account_id = ? AND status IN (?, ?)`,
		models.RecoveryClosed, accountID, models.RecoveryApproved, models.RecoveryDenied)
	if err != nil {
		return 0, wrapError(err)
	}
	return res.RowsAffected()
}

// CreateRecoveryRequest inserts a pending request and fills in its ID.
// A second pending request for the same account yields ErrDuplicate.
func (r *Repository) CreateRecoveryRequest(ctx context.Context, req *models.RecoveryRequest) error {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.CreatedAt = req.CreatedAt.UTC()
	req.Status = models.RecoveryPending

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recovery_requests (account_id, message, id_proof_ref, selfie_proof_ref, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.AccountID, req.Message, req.IDProofRef, req.SelfieProofRef, req.Status, req.CreatedAt)
	if err != nil {
		return wrapError(err)
	}
	req.ID, err = res.LastInsertId()
	return err
}

// GetRecoveryRequest retrieves a request by its ID.
func (r *Repository) GetRecoveryRequest(ctx context.Context, id int64) (*models.RecoveryRequest, error) {
	var req models.RecoveryRequest
	if err := r.db.GetContext(ctx, &req, `SELECT * FROM recovery_requests WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &req, nil
}

// ResolveRecoveryRequest moves a pending request to status. It returns
// ErrNotFound when the request does not exist or is no longer pending.
func (r *Repository) ResolveRecoveryRequest(ctx context.Context, id int64, status models.RecoveryStatus, adminID int64, notes string, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE recovery_requests
		 SET status = ?, admin_notes = ?, resolved_by_admin_id = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		status, notes, adminID, at.UTC(), id, models.RecoveryPending))
}

// LatestRecoveryRequest returns the newest pending, approved or denied
// request of an account. Closed requests are history and never returned.
func (r *Repository) LatestRecoveryRequest(ctx context.Context, accountID int64) (*models.RecoveryRequest, error) {
	var req models.RecoveryRequest
	err := r.db.GetContext(ctx, &req,
		`SELECT * FROM recovery_requests
		 WHERE account_id = ? AND status IN (?, ?, ?)
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		accountID, models.RecoveryPending, models.RecoveryApproved, models.RecoveryDenied)
	if err != nil {
		return nil, wrapError(err)
	}
	return &req, nil
}

// ListRecoveryRequests returns requests with the owner's student number,
// oldest first. An empty status lists every request.
func (r *Repository) ListRecoveryRequests(ctx context.Context, status models.RecoveryStatus) ([]models.RecoveryRequestListing, error) {
	query := `SELECT rr.*, a.student_number FROM recovery_requests rr
		JOIN accounts a ON a.id = rr.account_id`
	var args []any
	if status != "" {
		query += ` WHERE rr.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY rr.created_at ASC, rr.id ASC`

	var reqs []models.RecoveryRequestListing
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, err
	}
	return reqs, nil
}

// ListAccountRecoveryRequests returns all requests of one account, oldest first.
func (r *Repository) ListAccountRecoveryRequests(ctx context.Context, accountID int64) ([]models.RecoveryRequest, error) {
	var reqs []models.RecoveryRequest
	err := r.db.SelectContext(ctx, &reqs,
		`SELECT * FROM recovery_requests WHERE account_id = ? ORDER BY created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	return reqs, nil
}
