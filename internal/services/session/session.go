// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues the bearer tokens that authenticate students and
// administrators after a flow has completed, and the short-lived challenge
// tokens that bind the steps of a flow together.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"github.com/gorilla/securecookie"
)

// ErrInvalidToken is returned for tokens that are malformed, tampered with,
// expired or issued for another purpose.
var ErrInvalidToken = errors.New("invalid token")

const tokenName = "yearbook_session"

// Role distinguishes student sessions from administrator sessions.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Principal is the identity carried by a session token.
type Principal struct {
	Subject  int64     `json:"sub"`
	Role     Role      `json:"role"`
	IssuedAt time.Time `json:"iat"`
}

// Manager encodes and decodes session tokens.
type Manager struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	now    func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerClock replaces the time source used for expiry checks.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session token manager.
// If HashKey is empty a random key is generated, which invalidates all
// tokens on restart.
func NewManager(cfg *config.SessionConfig, opts ...ManagerOption) (*Manager, error) {
	var hashKey []byte
	if cfg.HashKey == "" {
		slog.Warn("session_hash_key_generated", "hint", "set --session-hash-key to keep sessions across restarts")
		hashKey = securecookie.GenerateRandomKey(32)
	} else {
		var err error
		hashKey, err = decodeKey(cfg.HashKey)
		if err != nil {
			return nil, fmt.Errorf("invalid session hash key: %w", err)
		}
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		var err error
		blockKey, err = decodeKey(cfg.BlockKey)
		if err != nil {
			return nil, fmt.Errorf("invalid session block key: %w", err)
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})

	m := &Manager{
		codec:  codec,
		maxAge: time.Duration(cfg.MaxAge) * time.Second,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must be 32 bytes (64 hex characters), got %d bytes", len(key))
	}
	return key, nil
}

// MaxAge returns the session lifetime.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue returns a signed token for subject.
func (m *Manager) Issue(subject int64, role Role) (string, error) {
	p := Principal{Subject: subject, Role: role, IssuedAt: m.now().UTC()}
	token, err := m.codec.Encode(tokenName, p)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return token, nil
}

// Parse decodes a token and enforces the session lifetime.
func (m *Manager) Parse(token string) (*Principal, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var p Principal
	if err := m.codec.Decode(tokenName, token, &p); err != nil {
		return nil, ErrInvalidToken
	}
	if p.Subject <= 0 || (p.Role != RoleStudent && p.Role != RoleAdmin) {
		return nil, ErrInvalidToken
	}
	if m.now().Sub(p.IssuedAt) > m.maxAge {
		return nil, ErrInvalidToken
	}
	return &p, nil
}
