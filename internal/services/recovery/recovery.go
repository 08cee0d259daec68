// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package recovery implements account recovery: the administrator-reviewed
// request queue and the self-service password reset by email code.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/otp"
)

// Default resolution notes when the administrator leaves them blank.
const (
	DefaultApproveNotes = "Approved. Password has been reset to your Student Number."
	DefaultDenyNotes    = "Insufficient information provided."
)

// Submission is a student's recovery request.
type Submission struct {
	Message     string
	IDProof     *evidence.File
	SelfieProof *evidence.File
}

// Decision is the outcome of an approval or denial.
type Decision struct {
	Request *models.RecoveryRequest
	// NotifyErr is set when the student could not be told. The decision
	// stands regardless.
	NotifyErr error
}

// Status is what a student learns about their latest request.
type Status struct {
	Found     bool
	RequestID int64
	Status    models.RecoveryStatus
	Notes     string
	CreatedAt time.Time
}

// Service runs the recovery workflows.
type Service struct {
	repo      *repository.Repository
	evidence  *evidence.Service
	otp       *otp.Engine
	ledger    *ledger.Ledger
	notifier  email.Notifier
	tokens    auth.Tokens
	hasher    *auth.Hasher
	validator *auth.PasswordValidator
	maskEmail bool
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEmailMasking controls whether StartReset masks the address it reports.
func WithEmailMasking(mask bool) Option {
	return func(s *Service) { s.maskEmail = mask }
}

// WithPasswordValidator replaces the default password validator.
func WithPasswordValidator(v *auth.PasswordValidator) Option {
	return func(s *Service) { s.validator = v }
}

func NewService(
	repo *repository.Repository,
	ev *evidence.Service,
	engine *otp.Engine,
	l *ledger.Ledger,
	notifier email.Notifier,
	tokens auth.Tokens,
	hasher *auth.Hasher,
	opts ...Option,
) *Service {
	s := &Service{
		repo:      repo,
		evidence:  ev,
		otp:       engine,
		ledger:    l,
		notifier:  notifier,
		tokens:    tokens,
		hasher:    hasher,
		validator: auth.DefaultPasswordValidator(),
		maskEmail: true,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit files a recovery request. Evidence is stored first; absent files
// leave their reference empty. Earlier approved or denied requests of the
// account are closed. A request that is still pending makes the submission
// fail with apperr.ErrConflict.
func (s *Service) Submit(ctx context.Context, accountID int64, sub Submission) (*models.RecoveryRequest, error) {
	message := strings.TrimSpace(sub.Message)
	if message == "" {
		return nil, apperr.Invalid("message is required")
	}

	if _, err := s.loadAccount(ctx, s.repo, accountID); err != nil {
		return nil, err
	}

	idRef, err := s.evidence.Save(ctx, accountID, withKind(sub.IDProof, evidence.KindIDProof))
	if err != nil {
		return nil, err
	}
	selfieRef, err := s.evidence.Save(ctx, accountID, withKind(sub.SelfieProof, evidence.KindSelfieProof))
	if err != nil {
		s.discardEvidence(ctx, idRef)
		return nil, err
	}

	req := &models.RecoveryRequest{
		AccountID:      accountID,
		Message:        message,
		IDProofRef:     idRef,
		SelfieProofRef: selfieRef,
		CreatedAt:      s.now(),
	}
	var closed int64
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		closed, err = tx.CloseResolvedRecoveryRequests(ctx, accountID)
		if err != nil {
			return apperr.Store("close resolved requests", err)
		}
		if err := tx.CreateRecoveryRequest(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: a recovery request is already pending", apperr.ErrConflict)
			}
			return apperr.Store("create recovery request", err)
		}
		return nil
	})
	if err != nil {
		s.discardEvidence(ctx, idRef, selfieRef)
		s.logger.WarnContext(ctx, "recovery_submit_failed", "account_id", accountID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "recovery_submitted",
		"account_id", accountID,
		"request_id", req.ID,
		"closed", closed,
		"id_proof", idRef != "",
		"selfie_proof", selfieRef != "",
	)
	return req, nil
}

func withKind(f *evidence.File, kind evidence.Kind) *evidence.File {
	if f == nil {
		return nil
	}
	return &evidence.File{Kind: kind, Body: f.Body}
}

func (s *Service) discardEvidence(ctx context.Context, refs ...string) {
	for _, ref := range refs {
		if err := s.evidence.Delete(ctx, ref); err != nil {
			s.logger.WarnContext(ctx, "evidence_cleanup_failed", "ref", ref, "error", err)
		}
	}
}

// Approve resets the account's password to its student number and resolves
// the request. Only pending requests can be approved.
func (s *Service) Approve(ctx context.Context, adminID, requestID int64, notes string) (*Decision, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = DefaultApproveNotes
	}

	req, acc, err := s.loadPending(ctx, adminID, requestID)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(acc.StudentNumber)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := s.resolve(ctx, tx, adminID, requestID, models.RecoveryApproved, notes); err != nil {
			return err
		}
		if err := tx.UpdatePasswordHash(ctx, acc.ID, hash); err != nil {
			return apperr.Store("reset password", err)
		}
		if err := tx.ClearOTP(ctx, acc.ID); err != nil {
			return apperr.Store("clear otp", err)
		}
		return s.ledger.Record(ctx, tx, acc.ID, ledger.ActionPasswordResetByAdmin)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "recovery_approved", "request_id", requestID, "admin_id", adminID, "account_id", acc.ID)
	return s.decided(ctx, req.ID, acc)
}

// Deny resolves a pending request without touching the account.
func (s *Service) Deny(ctx context.Context, adminID, requestID int64, notes string) (*Decision, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = DefaultDenyNotes
	}

	req, acc, err := s.loadPending(ctx, adminID, requestID)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		return s.resolve(ctx, tx, adminID, requestID, models.RecoveryDenied, notes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "recovery_denied", "request_id", requestID, "admin_id", adminID, "account_id", acc.ID)
	return s.decided(ctx, req.ID, acc)
}

func (s *Service) loadPending(ctx context.Context, adminID, requestID int64) (*models.RecoveryRequest, *models.Account, error) {
	if _, err := s.repo.GetAdministratorByID(ctx, adminID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: administrator %d", apperr.ErrNotFound, adminID)
		}
		return nil, nil, apperr.Store("load administrator", err)
	}

	req, err := s.repo.GetRecoveryRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: recovery request %d", apperr.ErrNotFound, requestID)
		}
		return nil, nil, apperr.Store("load recovery request", err)
	}
	if req.Status != models.RecoveryPending {
		return nil, nil, fmt.Errorf("%w: recovery request %d is %s", apperr.ErrNotFound, requestID, req.Status)
	}

	acc, err := s.loadAccount(ctx, s.repo, req.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return req, acc, nil
}

// resolve flips the request only while it is still pending, so two
// administrators deciding at once cannot both win.
func (s *Service) resolve(ctx context.Context, tx *repository.Repository, adminID, requestID int64, status models.RecoveryStatus, notes string) error {
	err := tx.ResolveRecoveryRequest(ctx, requestID, status, adminID, notes, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: recovery request %d is no longer pending", apperr.ErrNotFound, requestID)
	}
	if err != nil {
		return apperr.Store("resolve recovery request", err)
	}
	return nil
}

func (s *Service) decided(ctx context.Context, requestID int64, acc *models.Account) (*Decision, error) {
	req, err := s.repo.GetRecoveryRequest(ctx, requestID)
	if err != nil {
		return nil, apperr.Store("load recovery request", err)
	}

	d := &Decision{Request: req}
	if !acc.HasEmail() {
		return d, nil
	}

	err = s.notifier.SendRecoveryDecision(ctx, acc.EmailAddress(), email.RecoveryDecision{
		RequestID:     req.ID,
		StudentNumber: acc.StudentNumber,
		Status:        req.Status,
		Notes:         req.AdminNotes,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "recovery_notice_failed", "request_id", req.ID, "error", err)
		d.NotifyErr = apperr.Delivery(err)
	}
	return d, nil
}

// CheckStatus reports the latest pending, approved or denied request of the
// student. Unknown student numbers look like students without requests.
func (s *Service) CheckStatus(ctx context.Context, studentNumber string) (*Status, error) {
	studentNumber = strings.TrimSpace(studentNumber)
	if studentNumber == "" {
		return nil, apperr.Invalid("student number is required")
	}

	acc, err := s.repo.GetAccountByStudentNumber(ctx, studentNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, apperr.Store("load account", err)
	}

	req, err := s.repo.LatestRecoveryRequest(ctx, acc.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, apperr.Store("load recovery request", err)
	}

	return &Status{
		Found:     true,
		RequestID: req.ID,
		Status:    req.Status,
		Notes:     req.AdminNotes,
		CreatedAt: req.CreatedAt,
	}, nil
}

// ListRequests returns the administrator queue. An empty status lists all
// requests.
func (s *Service) ListRequests(ctx context.Context, status models.RecoveryStatus) ([]models.RecoveryRequestListing, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Invalid("unknown status %q", status)
	}
	reqs, err := s.repo.ListRecoveryRequests(ctx, status)
	if err != nil {
		return nil, apperr.Store("list recovery requests", err)
	}
	return reqs, nil
}

// Get returns a single request.
func (s *Service) Get(ctx context.Context, requestID int64) (*models.RecoveryRequest, error) {
	req, err := s.repo.GetRecoveryRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: recovery request %d", apperr.ErrNotFound, requestID)
	}
	if err != nil {
		return nil, apperr.Store("load recovery request", err)
	}
	return req, nil
}

// EvidenceRef returns the stored reference of one evidence slot.
func (s *Service) EvidenceRef(ctx context.Context, requestID int64, kind evidence.Kind) (string, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return "", err
	}

	var ref string
	switch kind {
	case evidence.KindIDProof:
		ref = req.IDProofRef
	case evidence.KindSelfieProof:
		ref = req.SelfieProofRef
	default:
		return "", apperr.Invalid("unknown evidence kind %q", kind)
	}
	if ref == "" {
		return "", fmt.Errorf("%w: no %s on request %d", apperr.ErrNotFound, kind, requestID)
	}
	return ref, nil
}

func (s *Service) loadAccount(ctx context.Context, repo *repository.Repository, accountID int64) (*models.Account, error) {
	acc, err := repo.GetAccountByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %d", apperr.ErrNotFound, accountID)
	}
	if err != nil {
		return nil, apperr.Store("load account", err)
	}
	return acc, nil
}
