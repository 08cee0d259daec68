// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"
)

const challengeIssuer = "yearbook-api"

// Stage names the step a challenge token unlocks.
type Stage string

const (
	StageSecurityQuestions Stage = "security_questions"
	StageEmailSetup        Stage = "email_setup"
	StageTwoFactor         Stage = "two_factor"
	StageRecovery          Stage = "recovery"
)

// ChallengeClaims are the claims of a challenge token.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Stage Stage `json:"stage"`
}

// Challenge is an issued challenge token.
type Challenge struct {
	Token     string
	Stage     Stage
	ExpiresAt time.Time
}

// Challenges issues and verifies HS256 challenge tokens.
type Challenges struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// ChallengeOption configures Challenges.
type ChallengeOption func(*Challenges)

// WithChallengeClock replaces the time source.
func WithChallengeClock(now func() time.Time) ChallengeOption {
	return func(c *Challenges) { c.now = now }
}

// NewChallenges creates a challenge token issuer. An empty secret is
// replaced by a random one.
func NewChallenges(secret string, ttl time.Duration, opts ...ChallengeOption) *Challenges {
	key := []byte(secret)
	if secret == "" {
		slog.Warn("challenge_secret_generated", "hint", "set --challenge-secret to keep step tokens across restarts")
		key = securecookie.GenerateRandomKey(32)
	}

	c := &Challenges{secret: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue returns a token that lets accountID perform stage.
func (c *Challenges) Issue(accountID int64, stage Stage) (*Challenge, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    challengeIssuer,
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Stage: stage,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}
	return &Challenge{Token: signed, Stage: stage, ExpiresAt: expiresAt}, nil
}

// Verify checks the token and returns the account it was issued to.
func (c *Challenges) Verify(tokenString string, stage Stage) (int64, error) {
	if tokenString == "" {
		return 0, ErrInvalidToken
	}

	claims := &ChallengeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(challengeIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	if claims.Stage != stage {
		return 0, ErrInvalidToken
	}

	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || accountID <= 0 {
		return 0, ErrInvalidToken
	}
	return accountID, nil
}
