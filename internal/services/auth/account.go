// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
)

const summaryActivityLimit = 10

// Summary is what a signed-in student sees about their own account.
type Summary struct {
	Account  *models.Account
	Activity []models.ActivityEvent
	Recovery *models.RecoveryRequest
}

// Summary returns the account with its recent activity and latest recovery
// request, if any.
func (s *Service) Summary(ctx context.Context, accountID int64) (*Summary, error) {
	acc, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	activity, err := s.ledger.Recent(ctx, s.repo, accountID, summaryActivityLimit)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Account: acc, Activity: activity}
	req, err := s.repo.LatestRecoveryRequest(ctx, accountID)
	switch {
	case err == nil:
		sum.Recovery = req
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Store("load recovery request", err)
	}
	return sum, nil
}

// MarkNotificationsChecked records that the student opened notifications.
func (s *Service) MarkNotificationsChecked(ctx context.Context, accountID int64) error {
	err := s.repo.TouchNotificationCheck(ctx, accountID, s.otp.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: account %d", apperr.ErrNotFound, accountID)
	}
	if err != nil {
		return apperr.Store("touch notification check", err)
	}
	return nil
}

// ProvisionParams describes an account created by the registrar.
type ProvisionParams struct {
	StudentNumber string
	Password      string
	Email         string
	Verified      bool
	Profile       *models.StudentProfile
}

// ProvisionAccount creates an account row and its security profile. The
// initial password is not checked against the validator because it is
// usually the student number.
func (s *Service) ProvisionAccount(ctx context.Context, p ProvisionParams) (*models.Account, error) {
	studentNumber := strings.TrimSpace(p.StudentNumber)
	if studentNumber == "" {
		return nil, apperr.Invalid("student number is required")
	}
	password := p.Password
	if password == "" {
		password = studentNumber
	}

	var address *string
	if p.Email != "" {
		normalized, err := email.Normalize(p.Email)
		if err != nil {
			return nil, err
		}
		address = &normalized
	}

	status := models.AccountPendingVerification
	if p.Verified {
		status = models.AccountVerified
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	var acc *models.Account
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		acc, err = tx.CreateAccount(ctx, studentNumber, hash, address, status)
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("%w: student number %s already exists", apperr.ErrConflict, studentNumber)
		}
		if err != nil {
			return apperr.Store("create account", err)
		}
		if p.Profile != nil {
			if err := tx.SaveStudentProfile(ctx, acc.ID, *p.Profile); err != nil {
				return apperr.Store("save profile", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account_provisioned", "account_id", acc.ID, "verified", p.Verified)
	return acc, nil
}
