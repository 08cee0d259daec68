// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/recovery"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
	"codeberg.org/psuyearbook/yearbook-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestStartReset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("blank student number", func(t *testing.T) {
		_, err := f.svc.StartReset(ctx, " ")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("unknown student number", func(t *testing.T) {
		_, err := f.svc.StartReset(ctx, "99-99999")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("no email on file", func(t *testing.T) {
		acc := testutil.NewTestAccount(t, f.repo, "21-00002", "secret-pass")
		res, err := f.svc.StartReset(ctx, "21-00002")
		require.NoError(t, err)

		assert.Equal(t, recovery.ResetNoEmail, res.State)
		assert.Empty(t, res.Email)
		assert.Zero(t, f.notifier.OTPCount())

		id, err := f.tokens.Challenges.Verify(res.Challenge.Token, session.StageRecovery)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, id)
	})

	t.Run("email on file", func(t *testing.T) {
		acc := testutil.NewTestAccount(t, f.repo, studentNumber, "secret-pass", testutil.Verified(), testutil.WithEmail(address))
		res, err := f.svc.StartReset(ctx, studentNumber)
		require.NoError(t, err)

		assert.Equal(t, recovery.ResetEmailFound, res.State)
		assert.Equal(t, acc.ID, res.AccountID)
		assert.Equal(t, "j*****c@gmail.com", res.Email)

		sent := f.notifier.LastOTP()
		assert.Equal(t, address, sent.To)
		assert.Equal(t, models.PurposePasswordReset, sent.Purpose)
	})
}

func TestResetPassword(t *testing.T) {
	f := setup(t)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, "forgotten-pass", testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.StartReset(ctx, studentNumber)
	require.NoError(t, err)
	code := f.notifier.LastOTP().Code

	t.Run("missing fields", func(t *testing.T) {
		err := f.svc.ResetPassword(ctx, acc.ID, "", "violet-harbor-42")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("weak password keeps the code", func(t *testing.T) {
		err := f.svc.ResetPassword(ctx, acc.ID, code, studentNumber)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, _, _, ok := testutil.ReloadAccount(t, f.repo, acc.ID).PendingOTP()
		assert.True(t, ok)
	})

	t.Run("wrong code", func(t *testing.T) {
		err := f.svc.ResetPassword(ctx, acc.ID, "000000", "violet-harbor-42")
		assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
	})

	t.Run("resets the password", func(t *testing.T) {
		require.NoError(t, f.svc.ResetPassword(ctx, acc.ID, code, "violet-harbor-42"))

		reloaded := testutil.ReloadAccount(t, f.repo, acc.ID)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(reloaded.PasswordHash), []byte("violet-harbor-42")))
		assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionPasswordResetByOTP))
	})

	t.Run("code cannot be replayed", func(t *testing.T) {
		err := f.svc.ResetPassword(ctx, acc.ID, code, "another-fine-one")
		assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
	})
}

func TestResetPassword_Expired(t *testing.T) {
	f := setup(t)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, "forgotten-pass", testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.StartReset(ctx, studentNumber)
	require.NoError(t, err)
	f.clock.Advance(5*time.Minute + time.Second)

	err = f.svc.ResetPassword(ctx, acc.ID, f.notifier.LastOTP().Code, "violet-harbor-42")
	assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
}
