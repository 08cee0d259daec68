// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"testing"

	"codeberg.org/psuyearbook/yearbook-api/internal/database"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// HashPassword hashes with the minimum bcrypt cost to keep tests fast.
func HashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

type accountFixture struct {
	email   *string
	status  models.AccountStatus
	profile *models.StudentProfile
}

// AccountOption customises NewTestAccount.
type AccountOption func(*accountFixture)

// WithEmail puts a verification email on file.
func WithEmail(email string) AccountOption {
	return func(f *accountFixture) { f.email = &email }
}

// Verified marks first-time verification as completed.
func Verified() AccountOption {
	return func(f *accountFixture) { f.status = models.AccountVerified }
}

// WithProfile writes the security-question reference data.
func WithProfile(p models.StudentProfile) AccountOption {
	return func(f *accountFixture) { f.profile = &p }
}

// DefaultProfile is the reference data used by most tests.
func DefaultProfile() models.StudentProfile {
	return models.StudentProfile{
		FirstName:      "Juan",
		LastName:       "Dela Cruz",
		Department:     "BS Information Technology",
		BatchYear:      2024,
		MotherLastname: "Santos",
		Barangay:       "Poblacion",
	}
}

// NewTestAccount provisions an account. Without options it is a first-time
// account with no email.
func NewTestAccount(t *testing.T, repo *repository.Repository, studentNumber, password string, opts ...AccountOption) *models.Account {
	t.Helper()
	ctx := context.Background()

	f := &accountFixture{status: models.AccountPendingVerification}
	for _, opt := range opts {
		opt(f)
	}

	acc, err := repo.CreateAccount(ctx, studentNumber, HashPassword(t, password), f.email, f.status)
	require.NoError(t, err)

	if f.profile != nil {
		require.NoError(t, repo.SaveStudentProfile(ctx, acc.ID, *f.profile))
	}
	return acc
}

// NewTestAdmin creates an administrator.
func NewTestAdmin(t *testing.T, repo *repository.Repository, username, password string) *models.Administrator {
	t.Helper()
	admin, err := repo.CreateAdministrator(context.Background(), username, HashPassword(t, password), "Registrar")
	require.NoError(t, err)
	return admin
}

// ReloadAccount fetches the current row of an account.
func ReloadAccount(t *testing.T, repo *repository.Repository, id int64) *models.Account {
	t.Helper()
	acc, err := repo.GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return acc
}
