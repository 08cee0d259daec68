// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"golang.org/x/crypto/acme/autocert"
)

// TLSMode represents the resolved TLS mode.
type TLSMode string

const (
	TLSModeOff    TLSMode = "off"
	TLSModeACME   TLSMode = "acme"
	TLSModeManual TLSMode = "manual"
)

// ErrNoCertificateSource is returned when auto mode finds neither
// certificate files nor a usable ACME setup for a public host. Mobile
// clients reject self-signed certificates, so none is generated.
var ErrNoCertificateSource = errors.New("no TLS certificate source: set --tls-cert-file and --tls-key-file, --tls-email for ACME, or --tls-mode off behind a terminating proxy")

// TLSResult is the resolved transport security of the API.
type TLSResult struct {
	Mode      TLSMode
	TLSConfig *tls.Config
	// Challenge answers ACME HTTP-01 requests and redirects everything
	// else to HTTPS. Set only in ACME mode.
	Challenge http.Handler
}

// SetupTLS resolves the configured mode and loads its certificates.
func SetupTLS(cfg *config.Config) (*TLSResult, error) {
	mode, err := resolveTLSMode(cfg, isPortAvailable)
	if err != nil {
		return nil, err
	}
	slog.Info("tls_mode", "mode", mode, "host", cfg.Server.Host)

	switch mode {
	case TLSModeACME:
		if cfg.Server.Port != 443 {
			slog.Warn("ACME mode listens on 443, configured port is ignored", "configured_port", cfg.Server.Port)
		}
		if err := acmeProblem(cfg, isPortAvailable); err != nil {
			return nil, fmt.Errorf("ACME mode: %w", err)
		}
		return setupACME(cfg)
	case TLSModeManual:
		return setupManual(cfg)
	default:
		return &TLSResult{Mode: TLSModeOff}, nil
	}
}

// resolveTLSMode turns the configured mode into a concrete one. portFree
// reports whether a port can be bound.
func resolveTLSMode(cfg *config.Config, portFree func(int) bool) (TLSMode, error) {
	switch mode := strings.ToLower(cfg.TLS.Mode); mode {
	case "off":
		return TLSModeOff, nil
	case "acme":
		return TLSModeACME, nil
	case "manual":
		return TLSModeManual, nil
	case "auto", "":
	default:
		return "", fmt.Errorf("unknown TLS mode %q (want auto, acme, manual or off)", mode)
	}

	switch {
	case config.IsLocalhost(cfg.Server.Host):
		return TLSModeOff, nil
	case cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "":
		return TLSModeManual, nil
	}

	if err := acmeProblem(cfg, portFree); err != nil {
		slog.Debug("ACME unavailable", "reason", err)
		return "", ErrNoCertificateSource
	}
	return TLSModeACME, nil
}

// acmeProblem reports why Let's Encrypt cannot serve this host, or nil.
func acmeProblem(cfg *config.Config, portFree func(int) bool) error {
	host := cfg.Server.Host
	switch {
	case config.IsLocalhost(host):
		return errors.New("host is localhost")
	case net.ParseIP(host) != nil:
		return errors.New("certificates are not issued for IP addresses")
	case cfg.TLS.Email == "":
		return errors.New("--tls-email is required")
	case !portFree(80):
		return errors.New("port 80 is needed for the HTTP-01 challenge")
	case !portFree(443):
		return errors.New("port 443 is in use")
	}
	return nil
}

func isPortAvailable(port int) bool {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func setupACME(cfg *config.Config) (*TLSResult, error) {
	certDir := filepath.Join(cfg.TLS.CertDir, "acme")
	if err := os.MkdirAll(certDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cert directory: %w", err)
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      cfg.TLS.Email,
		Cache:      autocert.DirCache(certDir),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	return &TLSResult{
		Mode:      TLSModeACME,
		TLSConfig: tlsConfig,
		Challenge: manager.HTTPHandler(nil),
	}, nil
}

// setupManual loads operator-provided certificate files.
func setupManual(cfg *config.Config) (*TLSResult, error) {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, errors.New("manual TLS mode requires both --tls-cert-file and --tls-key-file")
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	slog.Info("certificate_loaded", "file", cfg.TLS.CertFile, "sha256", fingerprint(&cert))

	return &TLSResult{
		Mode: TLSModeManual,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// fingerprint returns the colon separated SHA-256 of the leaf certificate.
func fingerprint(cert *tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	sum := sha256.Sum256(cert.Certificate[0])
	return strings.ReplaceAll(fmt.Sprintf("% X", sum[:]), " ", ":")
}
