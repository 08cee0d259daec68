// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp issues and checks the six-digit codes kept in an account's
// single OTP slot. Issuing a code replaces whatever the slot held before.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
)

const (
	// DefaultWindow applies to login, email setup and password reset codes.
	DefaultWindow = 5 * time.Minute
	// SettingsWindow applies to codes that authorise settings changes.
	SettingsWindow = 10 * time.Minute

	codeMin   = 100000
	codeRange = 900000
)

// Window returns how long a code for purpose stays valid.
func Window(purpose models.OTPPurpose) time.Duration {
	if purpose == models.PurposeSettings {
		return SettingsWindow
	}
	return DefaultWindow
}

// Issued describes a code that was persisted.
type Issued struct {
	Code      string
	Purpose   models.OTPPurpose
	SentTo    string
	ExpiresAt time.Time
	Resent    bool
}

// Engine issues, re-delivers and validates codes.
type Engine struct {
	repo     *repository.Repository
	notifier email.Notifier
	logger   *slog.Logger
	now      func() time.Time
	generate func() (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGenerator replaces the code generator.
func WithGenerator(generate func() (string, error)) Option {
	return func(e *Engine) { e.generate = generate }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an OTP engine.
func NewEngine(repo *repository.Repository, notifier email.Notifier, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		notifier: notifier,
		logger:   slog.Default(),
		now:      time.Now,
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// GenerateCode returns a code drawn uniformly from [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// Issue stores a fresh code for purpose and then sends it to the address.
// Nothing is sent when the code cannot be stored. When sending fails the
// code stays valid; the Issued value is returned with an error wrapping
// apperr.ErrDeliveryFailed.
func (e *Engine) Issue(ctx context.Context, accountID int64, to string, purpose models.OTPPurpose) (*Issued, error) {
	code, err := e.generate()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	expiresAt := e.now().Add(Window(purpose)).UTC()
	if err := e.repo.SetOTP(ctx, accountID, code, purpose, to, expiresAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %d", apperr.ErrNotFound, accountID)
		}
		return nil, apperr.Store("persist otp", err)
	}

	issued := &Issued{Code: code, Purpose: purpose, SentTo: to, ExpiresAt: expiresAt}
	e.logger.InfoContext(ctx, "otp_issued",
		"account_id", accountID,
		"purpose", purpose,
		"expires_at", expiresAt,
	)

	return issued, e.deliver(ctx, accountID, issued)
}

// Resend delivers the outstanding code again when it is still valid for the
// same purpose and address. Otherwise a new code is issued.
func (e *Engine) Resend(ctx context.Context, accountID int64, to string, purpose models.OTPPurpose) (*Issued, error) {
	acc, err := e.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %d", apperr.ErrNotFound, accountID)
		}
		return nil, apperr.Store("load account", err)
	}

	code, current, expiresAt, ok := acc.PendingOTP()
	if !ok || current != purpose || acc.OTPSentTo() != to || e.now().After(expiresAt) {
		return e.Issue(ctx, accountID, to, purpose)
	}

	issued := &Issued{Code: code, Purpose: purpose, SentTo: to, ExpiresAt: expiresAt, Resent: true}
	return issued, e.deliver(ctx, accountID, issued)
}

func (e *Engine) deliver(ctx context.Context, accountID int64, issued *Issued) error {
	validFor := issued.ExpiresAt.Sub(e.now()).Round(time.Minute)
	if validFor < time.Minute {
		validFor = time.Minute
	}

	if err := e.notifier.SendOTP(ctx, issued.SentTo, issued.Code, issued.Purpose, validFor); err != nil {
		e.logger.WarnContext(ctx, "otp_delivery_failed",
			"account_id", accountID,
			"purpose", issued.Purpose,
			"error", err,
		)
		return apperr.Delivery(err)
	}
	return nil
}

// Check reports whether code is currently valid for purpose without
// consuming it.
func (e *Engine) Check(ctx context.Context, accountID int64, purpose models.OTPPurpose, code string) error {
	if code == "" {
		return apperr.Invalid("code is required")
	}
	acc, err := e.load(ctx, e.repo, accountID)
	if err != nil {
		return err
	}
	return e.validate(acc, purpose, code)
}

// Consume validates code and clears the slot. It must run on the
// transactional repository of the state change it authorises, so the code
// cannot be replayed. It returns the address the code was sent to.
func (e *Engine) Consume(ctx context.Context, tx *repository.Repository, accountID int64, purpose models.OTPPurpose, code string) (string, error) {
	if code == "" {
		return "", apperr.Invalid("code is required")
	}
	acc, err := e.load(ctx, tx, accountID)
	if err != nil {
		return "", err
	}
	if err := e.validate(acc, purpose, code); err != nil {
		return "", err
	}
	if err := tx.ClearOTP(ctx, accountID); err != nil {
		return "", apperr.Store("clear otp", err)
	}

	e.logger.InfoContext(ctx, "otp_consumed", "account_id", accountID, "purpose", purpose)
	return acc.OTPSentTo(), nil
}

func (e *Engine) load(ctx context.Context, repo *repository.Repository, accountID int64) (*models.Account, error) {
	acc, err := repo.GetAccountByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		// An unknown account has no valid code.
		return nil, apperr.ErrOTPInvalidOrExpired
	}
	if err != nil {
		return nil, apperr.Store("load account", err)
	}
	return acc, nil
}

func (e *Engine) validate(acc *models.Account, purpose models.OTPPurpose, code string) error {
	stored, current, expiresAt, ok := acc.PendingOTP()
	if !ok || current != purpose {
		return apperr.ErrOTPInvalidOrExpired
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return apperr.ErrOTPInvalidOrExpired
	}
	if e.now().After(expiresAt) {
		return apperr.ErrOTPInvalidOrExpired
	}
	return nil
}
