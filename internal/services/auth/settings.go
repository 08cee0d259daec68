// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/otp"
)

// SettingsCode describes a settings code that was sent.
type SettingsCode struct {
	Email       string
	Issued      *otp.Issued
	DeliveryErr error
}

// SendSettingsOTP sends a settings code to the email on file.
func (s *Service) SendSettingsOTP(ctx context.Context, accountID int64) (*SettingsCode, error) {
	acc, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.HasEmail() {
		return nil, apperr.Invalid("no email address on file")
	}

	issued, err := s.otp.Issue(ctx, acc.ID, acc.EmailAddress(), models.PurposeSettings)
	if err != nil && !errors.Is(err, apperr.ErrDeliveryFailed) {
		return nil, err
	}
	return &SettingsCode{Email: s.displayEmail(acc.EmailAddress()), Issued: issued, DeliveryErr: err}, nil
}

// CheckSettingsOTP reports whether code is valid without using it up.
func (s *Service) CheckSettingsOTP(ctx context.Context, accountID int64, code string) error {
	return s.otp.Check(ctx, accountID, models.PurposeSettings, strings.TrimSpace(code))
}

// UpdateEmail replaces the email on file once a settings code is presented.
func (s *Service) UpdateEmail(ctx context.Context, accountID int64, code, newEmail string) (string, error) {
	address, err := email.Normalize(newEmail)
	if err != nil {
		return "", err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", apperr.Invalid("code is required")
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := s.otp.Consume(ctx, tx, accountID, models.PurposeSettings, code); err != nil {
			return err
		}
		if err := tx.UpdateEmail(ctx, accountID, address); err != nil {
			return apperr.Store("update email", err)
		}
		return s.ledger.Record(ctx, tx, accountID, ledger.ActionEmailUpdated)
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "email_updated", "account_id", accountID)
	return address, nil
}

// ChangePassword changes a student's password when they know the current one.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperr.Invalid("current and new password are required")
	}

	acc, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if !s.hasher.Compare(acc.PasswordHash, currentPassword) {
		s.logger.WarnContext(ctx, "password_change_failed", "account_id", accountID, "reason", "invalid_password")
		return apperr.ErrInvalidCredentials
	}

	if err := s.passwordValidator.Check(newPassword, acc.StudentNumber, acc.EmailAddress()); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdatePasswordHash(ctx, accountID, hash); err != nil {
			return apperr.Store("update password", err)
		}
		return s.ledger.Record(ctx, tx, accountID, ledger.ActionPasswordChanged)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password_changed", "account_id", accountID)
	return nil
}
