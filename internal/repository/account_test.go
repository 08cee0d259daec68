// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	email := "juan@example.com"

	acc, err := repo.CreateAccount(ctx, "2020-0001", "hash", &email, models.AccountVerified)

	require.NoError(t, err)
	assert.NotZero(t, acc.ID)
	assert.Equal(t, "2020-0001", acc.StudentNumber)
	assert.Equal(t, "juan@example.com", acc.EmailAddress())
	assert.Equal(t, models.AccountVerified, acc.Status)
	assert.False(t, acc.CreatedAt.IsZero())
	_, _, _, ok := acc.PendingOTP()
	assert.False(t, ok)
}

func TestCreateAccount_DuplicateStudentNumber(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.CreateAccount(ctx, "2020-0001", "hash", nil, models.AccountPendingVerification)
	require.NoError(t, err)

	_, err = repo.CreateAccount(ctx, "2020-0001", "hash", nil, models.AccountPendingVerification)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestGetAccountByStudentNumber(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	created := testutil.NewTestAccount(t, repo, "2020-0001", "secret123")

	acc, err := repo.GetAccountByStudentNumber(ctx, "2020-0001")

	require.NoError(t, err)
	assert.Equal(t, created.ID, acc.ID)
	assert.False(t, acc.HasEmail())
	assert.Equal(t, models.AccountPendingVerification, acc.Status)
}

func TestGetAccount_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.GetAccountByStudentNumber(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetAccountByID(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetOTP_Overwrites(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.NewTestAccount(t, repo, "2020-0001", "secret123")
	expires := time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC)

	require.NoError(t, repo.SetOTP(ctx, acc.ID, "111111", models.PurposeLogin, "a@x.com", expires))
	require.NoError(t, repo.SetOTP(ctx, acc.ID, "222222", models.PurposeSettings, "b@x.com", expires.Add(5*time.Minute)))

	code, purpose, expiresAt, ok := testutil.ReloadAccount(t, repo, acc.ID).PendingOTP()
	require.True(t, ok)
	assert.Equal(t, "222222", code)
	assert.Equal(t, models.PurposeSettings, purpose)
	assert.True(t, expiresAt.Equal(expires.Add(5*time.Minute)))
	assert.Equal(t, "b@x.com", testutil.ReloadAccount(t, repo, acc.ID).OTPSentTo())
}

func TestClearOTP(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.NewTestAccount(t, repo, "2020-0001", "secret123")
	require.NoError(t, repo.SetOTP(ctx, acc.ID, "111111", models.PurposeLogin, "a@x.com", time.Now().Add(time.Minute)))

	require.NoError(t, repo.ClearOTP(ctx, acc.ID))

	reloaded := testutil.ReloadAccount(t, repo, acc.ID)
	assert.Nil(t, reloaded.OTPCode)
	assert.Nil(t, reloaded.OTPPurpose)
	assert.Nil(t, reloaded.OTPExpiresAt)
	assert.Nil(t, reloaded.OTPTarget)
}

func TestAccountUpdates_UnknownAccount(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.SetOTP(ctx, 99, "111111", models.PurposeLogin, "a@x.com", time.Now()), repository.ErrNotFound)
	assert.ErrorIs(t, repo.ClearOTP(ctx, 99), repository.ErrNotFound)
	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, 99, "x"), repository.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateEmail(ctx, 99, "a@x.com"), repository.ErrNotFound)
	assert.ErrorIs(t, repo.CompleteVerification(ctx, 99, "a@x.com"), repository.ErrNotFound)
}

func TestCompleteVerification(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.NewTestAccount(t, repo, "2020-0001", "secret123")

	require.NoError(t, repo.CompleteVerification(ctx, acc.ID, "juan@example.com"))

	reloaded := testutil.ReloadAccount(t, repo, acc.ID)
	assert.True(t, reloaded.IsVerified())
	assert.Equal(t, "juan@example.com", reloaded.EmailAddress())
}

func TestUpdatePasswordHash(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.NewTestAccount(t, repo, "2020-0001", "secret123")

	require.NoError(t, repo.UpdatePasswordHash(ctx, acc.ID, "new-hash"))

	assert.Equal(t, "new-hash", testutil.ReloadAccount(t, repo, acc.ID).PasswordHash)
}

func TestTouchNotificationCheck(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.NewTestAccount(t, repo, "2020-0001", "secret123")
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.TouchNotificationCheck(ctx, acc.ID, at))

	reloaded := testutil.ReloadAccount(t, repo, acc.ID)
	require.NotNil(t, reloaded.LastNotificationCheck)
	assert.True(t, reloaded.LastNotificationCheck.Equal(at))
}

func TestCountAccounts(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestAccount(t, repo, "2020-0001", "secret123")
	testutil.NewTestAccount(t, repo, "2020-0002", "secret123")

	count, err := repo.CountAccounts(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
