// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
)

// CreateAccount provisions an account row.
func (r *Repository) CreateAccount(ctx context.Context, studentNumber, passwordHash string, email *string, status models.AccountStatus) (*models.Account, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (student_number, password_hash, email, account_status) VALUES (?, ?, ?, ?)`,
		studentNumber, passwordHash, email, status)
	if err != nil {
		return nil, wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetAccountByID(ctx, id)
}

// GetAccountByID retrieves an account by its ID.
func (r *Repository) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var acc models.Account
	if err := r.db.GetContext(ctx, &acc, `SELECT * FROM accounts WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// GetAccountByStudentNumber retrieves an account by its student number.
func (r *Repository) GetAccountByStudentNumber(ctx context.Context, studentNumber string) (*models.Account, error) {
	var acc models.Account
	if err := r.db.GetContext(ctx, &acc, `SELECT * FROM accounts WHERE student_number = ?`, studentNumber); err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// SetOTP overwrites the account's OTP slot in a single statement. target is
// the address the code is sent to.
func (r *Repository) SetOTP(ctx context.Context, accountID int64, code string, purpose models.OTPPurpose, target string, expiresAt time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET otp_code = ?, otp_purpose = ?, otp_target = ?, otp_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		code, purpose, target, expiresAt.UTC(), accountID))
}

// ClearOTP empties the account's OTP slot.
func (r *Repository) ClearOTP(ctx context.Context, accountID int64) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET otp_code = NULL, otp_purpose = NULL, otp_target = NULL, otp_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		accountID))
}

// UpdatePasswordHash replaces the stored password hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, accountID int64, passwordHash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, accountID))
}

// UpdateEmail replaces the verification email.
func (r *Repository) UpdateEmail(ctx context.Context, accountID int64, email string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE accounts SET email = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		email, accountID))
}

// CompleteVerification stores the verified email and marks the account as
// having finished first-time onboarding.
func (r *Repository) CompleteVerification(ctx context.Context, accountID int64, email string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE accounts SET email = ?, account_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		email, models.AccountVerified, accountID))
}

// TouchNotificationCheck records when the student last opened notifications.
func (r *Repository) TouchNotificationCheck(ctx context.Context, accountID int64, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE accounts SET last_notification_check = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		at.UTC(), accountID))
}

// CountAccounts returns the number of provisioned accounts.
func (r *Repository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM accounts`)
	return count, err
}
