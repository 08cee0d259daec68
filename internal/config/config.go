// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// configFile is filled by the --config flag; TOML sources read it lazily.
var (
	configFile   string
	configSource = altsrc.NewStringPtrSourcer(&configFile)
)

// Login policies decide what a verified account with an email gets after the
// password step.
const (
	LoginPolicyTwoFactor = "two_factor"
	LoginPolicyDirect    = "direct"
)

// Evidence backends.
const (
	EvidenceBackendFS = "fs"
	EvidenceBackendS3 = "s3"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Session  SessionConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Evidence EvidenceConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, manual, off
	CertDir  string // ACME certificate cache
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	MaxAge          int           // Session token lifetime in seconds
	HashKey         string        // 32-byte hex string for HMAC signing
	BlockKey        string        // 32-byte hex string for AES encryption (optional)
	ChallengeSecret string        // HMAC secret for step tokens
	ChallengeTTL    time.Duration // Lifetime of step tokens
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical
	LoginPolicy          string // two_factor or direct
	MaskEmail            bool   // Mask the email address in login responses
	BcryptCost           int
	ExposeDeliveryErrors bool // Operator-only: echo notifier errors in responses
}

// TwoFactorEnabled reports whether verified accounts with an email must pass
// an OTP step before they are authenticated.
func (c *AuthConfig) TwoFactorEnabled() bool {
	return c.LoginPolicy != LoginPolicyDirect
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Enabled reports whether an SMTP relay is configured.
func (c *SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type EvidenceConfig struct { //nolint:govet // fieldalignment not critical
	Backend      string // fs or s3
	Dir          string // fs backend root
	MaxUploadMB  int
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3PathPrefix string
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			MaxAge:          int(cmd.Int("session-max-age")),
			HashKey:         cmd.String("session-hash-key"),
			BlockKey:        cmd.String("session-block-key"),
			ChallengeSecret: cmd.String("challenge-secret"),
			ChallengeTTL:    cmd.Duration("challenge-ttl"),
		},
		Auth: AuthConfig{
			LoginPolicy:          strings.ToLower(cmd.String("login-policy")),
			MaskEmail:            cmd.Bool("mask-email"),
			BcryptCost:           int(cmd.Int("bcrypt-cost")),
			ExposeDeliveryErrors: cmd.Bool("expose-delivery-errors"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Evidence: EvidenceConfig{
			Backend:      strings.ToLower(cmd.String("evidence-backend")),
			Dir:          cmd.String("evidence-dir"),
			MaxUploadMB:  int(cmd.Int("evidence-max-upload")),
			S3Bucket:     cmd.String("evidence-s3-bucket"),
			S3Region:     cmd.String("evidence-s3-region"),
			S3Endpoint:   cmd.String("evidence-s3-endpoint"),
			S3AccessKey:  cmd.String("evidence-s3-access-key"),
			S3SecretKey:  cmd.String("evidence-s3-secret-key"),
			S3PathPrefix: cmd.String("evidence-s3-prefix"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// Validate checks option combinations that flags alone cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Auth.LoginPolicy {
	case LoginPolicyTwoFactor, LoginPolicyDirect:
	default:
		errs = append(errs, fmt.Errorf("unknown login policy %q (want %s or %s)",
			c.Auth.LoginPolicy, LoginPolicyTwoFactor, LoginPolicyDirect))
	}

	switch c.Evidence.Backend {
	case EvidenceBackendFS:
		if c.Evidence.Dir == "" {
			errs = append(errs, errors.New("evidence dir is required for the fs backend"))
		}
	case EvidenceBackendS3:
		if c.Evidence.S3Bucket == "" {
			errs = append(errs, errors.New("evidence s3 bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown evidence backend %q", c.Evidence.Backend))
	}

	if c.Session.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("challenge ttl must be positive"))
	}
	if c.Session.MaxAge <= 0 {
		errs = append(errs, errors.New("session max age must be positive"))
	}

	return errors.Join(errs...)
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func src(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configSource))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configFile,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: src("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: src("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: src("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   12,
			Usage:   "Maximum request body size in MB",
			Sources: src("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: src("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: src("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/yearbook.db",
			Usage:   "Database DSN",
			Sources: src("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, manual, off)",
			Sources: src("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for the ACME certificate cache",
			Sources: src("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: src("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: src("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: src("TLS_KEY_FILE", "tls.key_file"),
		},
		// Session flags
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session token lifetime in seconds",
			Sources: src("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: src("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: src("SESSION_BLOCK_KEY", "session.block_key"),
		},
		&cli.StringFlag{
			Name:    "challenge-secret",
			Usage:   "Secret for signing login step tokens (auto-generated if empty in dev)",
			Sources: src("CHALLENGE_SECRET", "session.challenge_secret"),
		},
		&cli.DurationFlag{
			Name:    "challenge-ttl",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of login step tokens",
			Sources: src("CHALLENGE_TTL", "session.challenge_ttl"),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "login-policy",
			Value:   LoginPolicyTwoFactor,
			Usage:   "Login policy for verified accounts with an email (two_factor, direct)",
			Sources: src("LOGIN_POLICY", "auth.login_policy"),
		},
		&cli.BoolFlag{
			Name:    "mask-email",
			Value:   true,
			Usage:   "Mask email addresses in login and recovery responses",
			Sources: src("MASK_EMAIL", "auth.mask_email"),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   10,
			Usage:   "bcrypt cost for password hashes",
			Sources: src("BCRYPT_COST", "auth.bcrypt_cost"),
		},
		&cli.BoolFlag{
			Name:    "expose-delivery-errors",
			Usage:   "Operator only: include mail delivery errors in API responses",
			Sources: src("EXPOSE_DELIVERY_ERRORS", "auth.expose_delivery_errors"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (OTPs are logged instead of mailed when empty)",
			Sources: src("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: src("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: src("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: src("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "no-reply@psu-yearbook.com",
			Usage:   "Sender address",
			Sources: src("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "PSU Yearbook",
			Usage:   "Sender display name",
			Sources: src("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: src("SMTP_TLS", "smtp.tls"),
		},
		// Evidence flags
		&cli.StringFlag{
			Name:    "evidence-backend",
			Value:   EvidenceBackendFS,
			Usage:   "Evidence storage backend (fs, s3)",
			Sources: src("EVIDENCE_BACKEND", "evidence.backend"),
		},
		&cli.StringFlag{
			Name:    "evidence-dir",
			Value:   "./data/recovery_proofs",
			Usage:   "Evidence directory (fs backend)",
			Sources: src("EVIDENCE_DIR", "evidence.dir"),
		},
		&cli.IntFlag{
			Name:    "evidence-max-upload",
			Value:   5,
			Usage:   "Maximum size of a single evidence file in MB",
			Sources: src("EVIDENCE_MAX_UPLOAD", "evidence.max_upload"),
		},
		&cli.StringFlag{
			Name:    "evidence-s3-bucket",
			Usage:   "S3 bucket (s3 backend)",
			Sources: src("EVIDENCE_S3_BUCKET", "evidence.s3_bucket"),
		},
		&cli.StringFlag{
			Name:    "evidence-s3-region",
			Value:   "us-east-1",
			Usage:   "S3 region",
			Sources: src("EVIDENCE_S3_REGION", "evidence.s3_region"),
		},
		&cli.StringFlag{
			Name:    "evidence-s3-endpoint",
			Usage:   "S3-compatible endpoint, e.g. a MinIO URL",
			Sources: src("EVIDENCE_S3_ENDPOINT", "evidence.s3_endpoint"),
		},
		&cli.StringFlag{
			Name:    "evidence-s3-access-key",
			Usage:   "S3 access key",
			Sources: src("EVIDENCE_S3_ACCESS_KEY", "evidence.s3_access_key"),
		},
		&cli.StringFlag{
			Name:    "evidence-s3-secret-key",
			Usage:   "S3 secret key",
			Sources: src("EVIDENCE_S3_SECRET_KEY", "evidence.s3_secret_key"),
		},
		&cli.StringFlag{
			Name:    "evidence-s3-prefix",
			Value:   "recovery_proofs",
			Usage:   "Key prefix for evidence objects",
			Sources: src("EVIDENCE_S3_PREFIX", "evidence.s3_prefix"),
		},
	}
}
