// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ledger records the per-account activity log. The log is an audit
// trail only; no flow reads it back to decide state.
package ledger

import (
	"context"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
)

// Action labels as they appear in the activity log.
const (
	ActionLoginPendingSecurity  = "Login step 1 success (pending security questions)"
	ActionLoginEmailMissing     = "Login step 1 success (email missing, email setup required)"
	ActionLoginCodeSent         = "Login step 1 success (2FA code sent)"
	ActionLoginDirect           = "Logged in via mobile app"
	ActionLoginTwoFactor        = "Logged in via mobile app (2FA)"
	ActionSecurityPassed        = "Security questions passed"
	ActionVerificationCompleted = "Mobile app 2FA successful"
	ActionEmailUpdated          = "Updated email address"
	ActionPasswordChanged       = "Changed password via Settings"
	ActionPasswordResetByAdmin  = "Password reset by administrator"
	ActionPasswordResetByOTP    = "Password reset via email OTP"
)

// Ledger appends activity entries.
type Ledger struct {
	now func() time.Time
}

func New() *Ledger {
	return &Ledger{now: time.Now}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Record appends action for the account. Pass the transactional repository
// when the entry must commit together with a state change.
func (l *Ledger) Record(ctx context.Context, repo *repository.Repository, accountID int64, action string) error {
	if err := repo.AppendActivity(ctx, accountID, action, l.now()); err != nil {
		return apperr.Store("record activity", err)
	}
	return nil
}

// Recent returns the newest entries for an account.
func (l *Ledger) Recent(ctx context.Context, repo *repository.Repository, accountID int64, limit int) ([]models.ActivityEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	events, err := repo.ListActivity(ctx, accountID, limit)
	if err != nil {
		return nil, apperr.Store("list activity", err)
	}
	return events, nil
}
