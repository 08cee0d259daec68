// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification implements first-time identity verification: the
// security-question check and the email setup that completes onboarding.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/otp"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
)

// Answers are the student's responses to the three security questions.
type Answers struct {
	MotherLastname string
	Barangay       string
	Course         string
}

// SetupCode describes an email setup code that was sent.
type SetupCode struct {
	Email       string
	Issued      *otp.Issued
	DeliveryErr error
}

type Service struct {
	repo   *repository.Repository
	otp    *otp.Engine
	ledger *ledger.Ledger
	tokens auth.Tokens
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(repo *repository.Repository, engine *otp.Engine, l *ledger.Ledger, tokens auth.Tokens, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		otp:    engine,
		ledger: l,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifySecurityAnswers checks all three answers against the registrar's
// records. Comparison ignores case and surrounding whitespace. A missing
// record never matches.
func (s *Service) VerifySecurityAnswers(ctx context.Context, accountID int64, a Answers) (*auth.Result, error) {
	a = Answers{
		MotherLastname: strings.TrimSpace(a.MotherLastname),
		Barangay:       strings.TrimSpace(a.Barangay),
		Course:         strings.TrimSpace(a.Course),
	}
	if a.MotherLastname == "" || a.Barangay == "" || a.Course == "" {
		return nil, apperr.Invalid("all three answers are required")
	}

	acc, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.IsVerified() {
		return nil, apperr.Invalid("account is already verified")
	}

	profile, err := s.repo.GetSecurityProfile(ctx, accountID)
	if err != nil {
		return nil, apperr.Store("load security profile", err)
	}

	// Evaluate every answer so the response does not reveal which one failed.
	mother := matches(profile.MotherLastname, a.MotherLastname)
	barangay := matches(profile.Barangay, a.Barangay)
	course := matches(profile.Course, a.Course)
	if !mother || !barangay || !course {
		s.logger.WarnContext(ctx, "security_questions_failed", "account_id", accountID)
		return nil, fmt.Errorf("%w: security answers do not match", apperr.ErrInvalidCredentials)
	}

	if err := s.ledger.Record(ctx, s.repo, accountID, ledger.ActionSecurityPassed); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "security_questions_passed", "account_id", accountID)
	return s.tokens.Challenge(acc, auth.StateEmailSetupRequired, session.StageEmailSetup)
}

func matches(reference *string, answer string) bool {
	if reference == nil {
		return false
	}
	ref := strings.TrimSpace(*reference)
	return ref != "" && strings.EqualFold(ref, answer)
}

// SendSetupOTP validates the candidate address and sends an email setup code
// to it.
func (s *Service) SendSetupOTP(ctx context.Context, accountID int64, candidate string) (*SetupCode, error) {
	address, err := email.Normalize(candidate)
	if err != nil {
		return nil, err
	}

	acc, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := canSetUpEmail(acc); err != nil {
		return nil, err
	}

	issued, err := s.otp.Resend(ctx, acc.ID, address, models.PurposeEmailSetup)
	if err != nil && !errors.Is(err, apperr.ErrDeliveryFailed) {
		return nil, err
	}
	return &SetupCode{Email: address, Issued: issued, DeliveryErr: err}, nil
}

// CompleteSetup stores the email and finishes onboarding once the code sent
// to that same address is presented.
func (s *Service) CompleteSetup(ctx context.Context, accountID int64, candidate, code string) (*auth.Result, error) {
	address, err := email.Normalize(candidate)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Invalid("code is required")
	}

	var acc *models.Account
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		current, err := tx.GetAccountByID(ctx, accountID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: account %d", apperr.ErrNotFound, accountID)
		}
		if err != nil {
			return apperr.Store("load account", err)
		}
		if err := canSetUpEmail(current); err != nil {
			return err
		}

		target, err := s.otp.Consume(ctx, tx, accountID, models.PurposeEmailSetup, code)
		if err != nil {
			return err
		}
		if target != address {
			return apperr.ErrOTPInvalidOrExpired
		}

		if err := tx.CompleteVerification(ctx, accountID, address); err != nil {
			return apperr.Store("complete verification", err)
		}
		if err := s.ledger.Record(ctx, tx, accountID, ledger.ActionVerificationCompleted); err != nil {
			return err
		}

		acc, err = tx.GetAccountByID(ctx, accountID)
		if err != nil {
			return apperr.Store("load account", err)
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "email_setup_failed", "account_id", accountID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "email_setup_completed", "account_id", accountID)
	return s.tokens.Authenticated(acc)
}

// canSetUpEmail rejects accounts that already finished onboarding with an
// email on file. Those change their email through settings.
func canSetUpEmail(acc *models.Account) error {
	if acc.IsVerified() && acc.HasEmail() {
		return apperr.Invalid("email is already set up")
	}
	return nil
}

func (s *Service) loadAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	acc, err := s.repo.GetAccountByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %d", apperr.ErrNotFound, accountID)
	}
	if err != nil {
		return nil, apperr.Store("load account", err)
	}
	return acc, nil
}
