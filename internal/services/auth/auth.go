// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the student login protocol, administrator login
// and the settings flows of a signed-in student.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/otp"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
)

// State is where a login attempt ended up.
type State string

const (
	StateFirstTimeVerification State = "first_time_verification_required"
	StateEmailSetupRequired    State = "email_setup_required"
	StateTwoFactorPending      State = "two_factor_pending"
	StateAuthenticated         State = "authenticated"
)

// Result is the outcome of a successful step in a login or onboarding flow.
// Exactly one of Challenge and SessionToken is set.
type Result struct {
	State         State
	AccountID     int64
	StudentNumber string
	Email         string
	Challenge     *session.Challenge
	SessionToken  string
	// DeliveryErr is set when the state advanced but the code could not be
	// sent.
	DeliveryErr error
}

// Tokens bundles the two token issuers a flow may hand out.
type Tokens struct {
	Sessions   *session.Manager
	Challenges *session.Challenges
}

// Challenge issues a challenge token and wraps it in a Result.
func (t Tokens) Challenge(acc *models.Account, state State, stage session.Stage) (*Result, error) {
	ch, err := t.Challenges.Issue(acc.ID, stage)
	if err != nil {
		return nil, err
	}
	return &Result{State: state, AccountID: acc.ID, StudentNumber: acc.StudentNumber, Challenge: ch}, nil
}

// Authenticated issues a student session token and wraps it in a Result.
func (t Tokens) Authenticated(acc *models.Account) (*Result, error) {
	token, err := t.Sessions.Issue(acc.ID, session.RoleStudent)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:         StateAuthenticated,
		AccountID:     acc.ID,
		StudentNumber: acc.StudentNumber,
		SessionToken:  token,
	}, nil
}

// AdminResult is the outcome of an administrator login.
type AdminResult struct {
	Admin        *models.Administrator
	SessionToken string
}

type Service struct {
	repo              *repository.Repository
	config            *config.AuthConfig
	otp               *otp.Engine
	ledger            *ledger.Ledger
	tokens            Tokens
	hasher            *Hasher
	passwordValidator *PasswordValidator
	logger            *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPasswordValidator replaces the default password validator.
func WithPasswordValidator(v *PasswordValidator) Option {
	return func(s *Service) { s.passwordValidator = v }
}

func NewService(repo *repository.Repository, cfg *config.AuthConfig, engine *otp.Engine, l *ledger.Ledger, tokens Tokens, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		config:            cfg,
		otp:               engine,
		ledger:            l,
		tokens:            tokens,
		hasher:            NewHasher(cfg.BcryptCost),
		passwordValidator: DefaultPasswordValidator(),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PasswordValidator returns the password validator for use in handlers
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwordValidator
}

// Hasher returns the password hasher.
func (s *Service) Hasher() *Hasher {
	return s.hasher
}

// Login runs the first step of the login protocol: the password check,
// followed by routing on the account's onboarding state and the configured
// login policy.
func (s *Service) Login(ctx context.Context, studentNumber, password string) (*Result, error) {
	studentNumber = strings.TrimSpace(studentNumber)
	if studentNumber == "" || password == "" {
		return nil, apperr.Invalid("student number and password are required")
	}

	acc, err := s.repo.GetAccountByStudentNumber(ctx, studentNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			s.hasher.CompareDummy(password)
			s.logger.WarnContext(ctx, "login_failed", "student_number", studentNumber, "reason", "account_not_found")
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.Store("load account", err)
	}

	if !s.hasher.Compare(acc.PasswordHash, password) {
		s.logger.WarnContext(ctx, "login_failed", "account_id", acc.ID, "reason", "invalid_password")
		return nil, apperr.ErrInvalidCredentials
	}

	switch {
	case !acc.IsVerified():
		if err := s.ledger.Record(ctx, s.repo, acc.ID, ledger.ActionLoginPendingSecurity); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "login_step", "account_id", acc.ID, "state", StateFirstTimeVerification)
		return s.tokens.Challenge(acc, StateFirstTimeVerification, session.StageSecurityQuestions)

	case !acc.HasEmail():
		if err := s.ledger.Record(ctx, s.repo, acc.ID, ledger.ActionLoginEmailMissing); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "login_step", "account_id", acc.ID, "state", StateEmailSetupRequired)
		return s.tokens.Challenge(acc, StateEmailSetupRequired, session.StageEmailSetup)

	case s.config.TwoFactorEnabled():
		return s.startTwoFactor(ctx, acc)

	default:
		if err := s.ledger.Record(ctx, s.repo, acc.ID, ledger.ActionLoginDirect); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "login_success", "account_id", acc.ID, "two_factor", false)
		return s.tokens.Authenticated(acc)
	}
}

func (s *Service) startTwoFactor(ctx context.Context, acc *models.Account) (*Result, error) {
	_, err := s.otp.Issue(ctx, acc.ID, acc.EmailAddress(), models.PurposeLogin)
	deliveryErr := err
	if err != nil && !errors.Is(err, apperr.ErrDeliveryFailed) {
		return nil, err
	}

	if err := s.ledger.Record(ctx, s.repo, acc.ID, ledger.ActionLoginCodeSent); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "login_step", "account_id", acc.ID, "state", StateTwoFactorPending)

	res, err := s.tokens.Challenge(acc, StateTwoFactorPending, session.StageTwoFactor)
	if err != nil {
		return nil, err
	}
	res.Email = s.displayEmail(acc.EmailAddress())
	res.DeliveryErr = deliveryErr
	return res, nil
}

func (s *Service) displayEmail(address string) string {
	if s.config.MaskEmail {
		return email.Mask(address)
	}
	return address
}

// VerifyLoginOTP completes a two-factor login.
func (s *Service) VerifyLoginOTP(ctx context.Context, accountID int64, code string) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Invalid("code is required")
	}

	var acc *models.Account
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := s.otp.Consume(ctx, tx, accountID, models.PurposeLogin, code); err != nil {
			return err
		}
		if err := s.ledger.Record(ctx, tx, accountID, ledger.ActionLoginTwoFactor); err != nil {
			return err
		}
		var err error
		acc, err = tx.GetAccountByID(ctx, accountID)
		if err != nil {
			return apperr.Store("load account", err)
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "login_otp_failed", "account_id", accountID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "login_success", "account_id", accountID, "two_factor", true)
	return s.tokens.Authenticated(acc)
}

// ResendLoginOTP delivers the pending login code again, or a fresh one if it
// has expired.
func (s *Service) ResendLoginOTP(ctx context.Context, accountID int64) (*Result, error) {
	acc, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.IsVerified() || !acc.HasEmail() {
		return nil, apperr.Invalid("account is not awaiting a login code")
	}

	_, err = s.otp.Resend(ctx, acc.ID, acc.EmailAddress(), models.PurposeLogin)
	if err != nil && !errors.Is(err, apperr.ErrDeliveryFailed) {
		return nil, err
	}

	return &Result{
		State:         StateTwoFactorPending,
		AccountID:     acc.ID,
		StudentNumber: acc.StudentNumber,
		Email:         s.displayEmail(acc.EmailAddress()),
		DeliveryErr:   err,
	}, nil
}

// AdminLogin authenticates an administrator.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (*AdminResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Invalid("username and password are required")
	}

	admin, err := s.repo.GetAdministratorByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.CompareDummy(password)
			s.logger.WarnContext(ctx, "admin_login_failed", "username", username, "reason", "not_found")
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.Store("load administrator", err)
	}

	if !s.hasher.Compare(admin.PasswordHash, password) {
		s.logger.WarnContext(ctx, "admin_login_failed", "admin_id", admin.ID, "reason", "invalid_password")
		return nil, apperr.ErrInvalidCredentials
	}

	token, err := s.tokens.Sessions.Issue(admin.ID, session.RoleAdmin)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "admin_login_success", "admin_id", admin.ID)
	return &AdminResult{Admin: admin, SessionToken: token}, nil
}

// CreateAdministrator provisions an administrator account.
func (s *Service) CreateAdministrator(ctx context.Context, username, password, displayName string) (*models.Administrator, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Invalid("username is required")
	}
	if err := s.passwordValidator.Check(password, username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	admin, err := s.repo.CreateAdministrator(ctx, username, hash, displayName)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("%w: administrator %q already exists", apperr.ErrConflict, username)
	}
	if err != nil {
		return nil, apperr.Store("create administrator", err)
	}
	return admin, nil
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
