// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"github.com/wneessen/go-mail"
)

// Notifier delivers one-time codes and recovery notices to an email address.
// Delivery may fail independently of the state change that triggered it.
type Notifier interface {
	SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, validFor time.Duration) error
	SendRecoveryDecision(ctx context.Context, to string, decision RecoveryDecision) error
}

// RecoveryDecision is the content of an approval or denial notice.
type RecoveryDecision struct {
	RequestID     int64
	StudentNumber string
	Status        models.RecoveryStatus
	Notes         string
}

// Sender hands a composed message to the mail transport.
type Sender func(ctx context.Context, msg *mail.Msg) error

// Service sends email through an SMTP relay.
type Service struct {
	cfg  *config.SMTPConfig
	send Sender
}

// Option configures a Service.
type Option func(*Service)

// WithSender replaces the SMTP transport.
func WithSender(send Sender) Option {
	return func(s *Service) {
		s.send = send
	}
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, opts ...Option) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	s := &Service{cfg: cfg}
	s.send = s.dialAndSend
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendOTP mails a one-time code for the given purpose.
func (s *Service) SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, validFor time.Duration) error {
	subject := i18n.T(ctx, "email_otp_subject_"+string(purpose))
	body := i18n.TData(ctx, "email_otp_body", map[string]any{
		"Code":    code,
		"Minutes": int(validFor.Minutes()),
	})

	return s.deliver(ctx, to, subject, body)
}

// SendRecoveryDecision tells the student how their recovery request was resolved.
func (s *Service) SendRecoveryDecision(ctx context.Context, to string, d RecoveryDecision) error {
	prefix := "email_recovery_denied"
	if d.Status == models.RecoveryApproved {
		prefix = "email_recovery_approved"
	}

	subject := i18n.T(ctx, prefix+"_subject")
	body := i18n.TData(ctx, prefix+"_body", map[string]any{
		"ID":            d.RequestID,
		"StudentNumber": d.StudentNumber,
		"Notes":         d.Notes,
	})

	return s.deliver(ctx, to, subject, body)
}

func (s *Service) deliver(ctx context.Context, to, subject, body string) error {
	msg, err := s.compose(to, subject, body)
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

func (s *Service) compose(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return msg, nil
}

// dialAndSend sends a message via SMTP using go-mail.
func (s *Service) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}

	// Use implicit TLS (SSL) for port 465, STARTTLS for others
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// LogNotifier writes codes and notices to the log instead of mailing them.
// It is meant for local development without an SMTP relay.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOTP(ctx context.Context, to, code string, purpose models.OTPPurpose, validFor time.Duration) error {
	n.logger.InfoContext(ctx, "otp_not_mailed",
		"to", to,
		"code", code,
		"purpose", purpose,
		"valid_for", validFor,
	)
	return nil
}

func (n *LogNotifier) SendRecoveryDecision(ctx context.Context, to string, d RecoveryDecision) error {
	n.logger.InfoContext(ctx, "recovery_decision_not_mailed",
		"to", to,
		"request_id", d.RequestID,
		"status", d.Status,
	)
	return nil
}

// New returns the SMTP service when a relay is configured and a LogNotifier
// otherwise.
func New(cfg *config.SMTPConfig, logger *slog.Logger) (Notifier, error) {
	if !cfg.Enabled() {
		return NewLogNotifier(logger), nil
	}
	return NewService(cfg)
}
