// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the services into the HTTP API and runs it.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// Run starts the API with the configuration of the given command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	SetupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"login_policy", cfg.Auth.LoginPolicy,
		"evidence_backend", cfg.Evidence.Backend,
	)

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	t, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, listeners(app.Echo(), cfg, t))
}

// listener is one server the process runs until shutdown.
type listener struct {
	name  string
	addr  string
	serve func() error
	stop  func(context.Context) error
}

// listeners plans the servers for the resolved TLS mode. ACME mode serves
// the API on 443 and answers challenges on 80.
func listeners(e *echo.Echo, cfg *config.Config, t *TLSResult) []listener {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	switch t.Mode {
	case TLSModeACME:
		challenge := &http.Server{
			Addr:              ":80",
			Handler:           t.Challenge,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return []listener{
			apiListener(e, ":443", t.TLSConfig),
			{name: "acme_challenge", addr: ":80", serve: challenge.ListenAndServe, stop: challenge.Shutdown},
		}
	case TLSModeManual:
		return []listener{apiListener(e, addr, t.TLSConfig)}
	default:
		return []listener{apiListener(e, addr, nil)}
	}
}

func apiListener(e *echo.Echo, addr string, tlsConfig *tls.Config) listener {
	l := listener{name: "api", addr: addr, stop: e.Shutdown}
	if tlsConfig == nil {
		l.serve = func() error { return e.Start(addr) }
		return l
	}
	l.serve = func() error {
		ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", addr)
		if err != nil {
			return err
		}
		e.TLSListener = tls.NewListener(ln, tlsConfig)
		e.TLSServer.TLSConfig = tlsConfig
		return e.Server.Serve(e.TLSListener)
	}
	return l
}

// serve runs every listener until ctx ends or one of them fails, then shuts
// all of them down.
func serve(ctx context.Context, ls []listener) error {
	errCh := make(chan error, len(ls))
	for _, l := range ls {
		go func() {
			slog.Info("listening", "server", l.name, "addr", l.addr)
			if err := l.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", l.name, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case runErr = <-errCh:
		slog.Error("server error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, l := range ls {
		if err := l.stop(shutdownCtx); err != nil {
			slog.Error("failed to shut down", "server", l.name, "error", err)
		}
	}

	slog.Info("server stopped")
	return runErr
}
