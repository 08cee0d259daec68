// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
)

// ResetState tells the student how to continue a forgotten password.
type ResetState string

const (
	// ResetEmailFound means a reset code was sent to the email on file.
	ResetEmailFound ResetState = "email_found"
	// ResetNoEmail means only a manual recovery request can help.
	ResetNoEmail ResetState = "no_email"
)

// ResetStart is the outcome of StartReset. The challenge token authorises
// either ResetPassword or Submit for the account.
type ResetStart struct {
	State       ResetState
	AccountID   int64
	Email       string
	Challenge   *session.Challenge
	DeliveryErr error
}

// StartReset begins a forgotten-password flow for a student number.
func (s *Service) StartReset(ctx context.Context, studentNumber string) (*ResetStart, error) {
	studentNumber = strings.TrimSpace(studentNumber)
	if studentNumber == "" {
		return nil, apperr.Invalid("student number is required")
	}

	acc, err := s.repo.GetAccountByStudentNumber(ctx, studentNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: student number %s", apperr.ErrNotFound, studentNumber)
	}
	if err != nil {
		return nil, apperr.Store("load account", err)
	}

	ch, err := s.tokens.Challenges.Issue(acc.ID, session.StageRecovery)
	if err != nil {
		return nil, err
	}
	res := &ResetStart{State: ResetNoEmail, AccountID: acc.ID, Challenge: ch}

	if !acc.HasEmail() {
		s.logger.InfoContext(ctx, "password_reset_started", "account_id", acc.ID, "state", res.State)
		return res, nil
	}

	_, err = s.otp.Issue(ctx, acc.ID, acc.EmailAddress(), models.PurposePasswordReset)
	if err != nil && !errors.Is(err, apperr.ErrDeliveryFailed) {
		return nil, err
	}
	res.State = ResetEmailFound
	res.DeliveryErr = err
	res.Email = acc.EmailAddress()
	if s.maskEmail {
		res.Email = email.Mask(res.Email)
	}

	s.logger.InfoContext(ctx, "password_reset_started", "account_id", acc.ID, "state", res.State)
	return res, nil
}

// ResetPassword sets a new password once the reset code is presented.
func (s *Service) ResetPassword(ctx context.Context, accountID int64, code, newPassword string) error {
	code = strings.TrimSpace(code)
	if code == "" || newPassword == "" {
		return apperr.Invalid("code and new password are required")
	}

	acc, err := s.loadAccount(ctx, s.repo, accountID)
	if err != nil {
		return err
	}
	if err := s.validator.Check(newPassword, acc.StudentNumber, acc.EmailAddress()); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := s.otp.Consume(ctx, tx, accountID, models.PurposePasswordReset, code); err != nil {
			return err
		}
		if err := tx.UpdatePasswordHash(ctx, accountID, hash); err != nil {
			return apperr.Store("update password", err)
		}
		return s.ledger.Record(ctx, tx, accountID, ledger.ActionPasswordResetByOTP)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "password_reset_failed", "account_id", accountID, "error", err)
		return err
	}

	s.logger.InfoContext(ctx, "password_reset_completed", "account_id", accountID)
	return nil
}
