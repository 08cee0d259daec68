// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/database"
	"codeberg.org/psuyearbook/yearbook-api/internal/handlers"
	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/otp"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/recovery"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/verification"
	"github.com/labstack/echo/v4"
	"github.com/vinovest/sqlx"
)

// App holds the wired services. The serve command and the operator
// commands share it.
type App struct {
	Config       *config.Config
	DB           *sqlx.DB
	Repo         *repository.Repository
	Auth         *auth.Service
	Verification *verification.Service
	Recovery     *recovery.Service
	Evidence     *evidence.Service
	Tokens       auth.Tokens
}

// NewApp opens the database, applies migrations and wires every service.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app, err := wire(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func wire(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*App, error) {
	logger := slog.Default()
	repo := repository.New(db)

	notifier, err := email.New(&cfg.SMTP, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up email: %w", err)
	}
	if !cfg.SMTP.Enabled() {
		slog.Warn("SMTP not configured, codes are written to the log")
	}

	store, err := evidence.NewStore(ctx, &cfg.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to set up evidence store: %w", err)
	}
	ev := evidence.NewService(store, int64(cfg.Evidence.MaxUploadMB)<<20)

	sessions, err := session.NewManager(&cfg.Session)
	if err != nil {
		return nil, err
	}
	tokens := auth.Tokens{
		Sessions:   sessions,
		Challenges: session.NewChallenges(cfg.Session.ChallengeSecret, cfg.Session.ChallengeTTL),
	}

	engine := otp.NewEngine(repo, notifier, otp.WithLogger(logger))
	l := ledger.New()
	authSvc := auth.NewService(repo, &cfg.Auth, engine, l, tokens, auth.WithLogger(logger))

	return &App{
		Config:       cfg,
		DB:           db,
		Repo:         repo,
		Auth:         authSvc,
		Verification: verification.NewService(repo, engine, l, tokens, verification.WithLogger(logger)),
		Recovery: recovery.NewService(repo, ev, engine, l, notifier, tokens, authSvc.Hasher(),
			recovery.WithLogger(logger),
			recovery.WithEmailMasking(cfg.Auth.MaskEmail),
			recovery.WithPasswordValidator(authSvc.PasswordValidator()),
		),
		Evidence: ev,
		Tokens:   tokens,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// Echo builds the HTTP server with middleware and routes.
func (a *App) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, a.Config)

	handlers.New(handlers.Deps{
		Auth:                 a.Auth,
		Verification:         a.Verification,
		Recovery:             a.Recovery,
		Evidence:             a.Evidence,
		Tokens:               a.Tokens,
		ExposeDeliveryErrors: a.Config.Auth.ExposeDeliveryErrors,
	}).Register(e)

	return e
}
