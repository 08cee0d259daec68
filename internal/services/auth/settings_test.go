// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSendSettingsOTP(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	ctx := context.Background()

	t.Run("no email on file", func(t *testing.T) {
		acc := testutil.NewTestAccount(t, f.repo, "21-00002", password, testutil.Verified())
		_, err := f.svc.SendSettingsOTP(ctx, acc.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("sends a ten minute code", func(t *testing.T) {
		acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
		res, err := f.svc.SendSettingsOTP(ctx, acc.ID)
		require.NoError(t, err)

		assert.Equal(t, "j*****c@gmail.com", res.Email)
		assert.Equal(t, f.clock.Now().Add(10*time.Minute), res.Issued.ExpiresAt)
		assert.Equal(t, models.PurposeSettings, f.notifier.LastOTP().Purpose)
	})
}

func TestCheckSettingsOTP(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.SendSettingsOTP(ctx, acc.ID)
	require.NoError(t, err)
	code := f.notifier.LastOTP().Code

	require.NoError(t, f.svc.CheckSettingsOTP(ctx, acc.ID, code))
	require.NoError(t, f.svc.CheckSettingsOTP(ctx, acc.ID, code))
	assert.ErrorIs(t, f.svc.CheckSettingsOTP(ctx, acc.ID, "000000"), apperr.ErrOTPInvalidOrExpired)
}

func TestUpdateEmail(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.SendSettingsOTP(ctx, acc.ID)
	require.NoError(t, err)
	code := f.notifier.LastOTP().Code

	t.Run("invalid address", func(t *testing.T) {
		_, err := f.svc.UpdateEmail(ctx, acc.ID, code, "not-an-email")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("wrong code changes nothing", func(t *testing.T) {
		_, err := f.svc.UpdateEmail(ctx, acc.ID, "000000", "new@example.com")
		assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
		assert.Equal(t, address, testutil.ReloadAccount(t, f.repo, acc.ID).EmailAddress())
	})

	t.Run("updates the email", func(t *testing.T) {
		got, err := f.svc.UpdateEmail(ctx, acc.ID, code, "New@Example.COM")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", got)

		reloaded := testutil.ReloadAccount(t, f.repo, acc.ID)
		assert.Equal(t, "new@example.com", reloaded.EmailAddress())
		_, _, _, ok := reloaded.PendingOTP()
		assert.False(t, ok)
		assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionEmailUpdated))
	})

	t.Run("code cannot be reused", func(t *testing.T) {
		_, err := f.svc.UpdateEmail(ctx, acc.ID, code, "again@example.com")
		assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
	})
}

func TestUpdateEmail_AfterSettingsWindow(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.SendSettingsOTP(ctx, acc.ID)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.svc.UpdateEmail(ctx, acc.ID, f.notifier.LastOTP().Code, "new@example.com")
	assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
}

func TestChangePassword(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	t.Run("wrong current password", func(t *testing.T) {
		err := f.svc.ChangePassword(ctx, acc.ID, "nope", "a-much-better-one")
		assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	})

	t.Run("weak new password", func(t *testing.T) {
		err := f.svc.ChangePassword(ctx, acc.ID, password, "12345678")
		require.ErrorIs(t, err, apperr.ErrInvalidInput)

		var verr *auth.PasswordValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Codes(), "entirely_numeric")
	})

	t.Run("similar to student number", func(t *testing.T) {
		err := f.svc.ChangePassword(ctx, acc.ID, password, "x21-00001x")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("changes the password", func(t *testing.T) {
		require.NoError(t, f.svc.ChangePassword(ctx, acc.ID, password, "a-much-better-one"))

		reloaded := testutil.ReloadAccount(t, f.repo, acc.ID)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(reloaded.PasswordHash), []byte("a-much-better-one")))
		assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionPasswordChanged))
	})
}
