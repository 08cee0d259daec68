// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models_test

import (
	"testing"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAccount_HasEmail(t *testing.T) {
	empty := ""
	email := "a@x.com"

	assert.False(t, (&models.Account{}).HasEmail())
	assert.False(t, (&models.Account{Email: &empty}).HasEmail())
	assert.True(t, (&models.Account{Email: &email}).HasEmail())
	assert.Equal(t, "a@x.com", (&models.Account{Email: &email}).EmailAddress())
	assert.Empty(t, (&models.Account{}).EmailAddress())
}

func TestAccount_IsVerified(t *testing.T) {
	assert.False(t, (&models.Account{Status: models.AccountPendingVerification}).IsVerified())
	assert.True(t, (&models.Account{Status: models.AccountVerified}).IsVerified())
}

func TestAccount_PendingOTP(t *testing.T) {
	t.Run("empty slot", func(t *testing.T) {
		_, _, _, ok := (&models.Account{}).PendingOTP()
		assert.False(t, ok)
	})

	t.Run("filled slot", func(t *testing.T) {
		code := "123456"
		purpose := models.PurposeLogin
		expires := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		acc := &models.Account{OTPCode: &code, OTPPurpose: &purpose, OTPExpiresAt: &expires}

		gotCode, gotPurpose, gotExpires, ok := acc.PendingOTP()

		assert.True(t, ok)
		assert.Equal(t, "123456", gotCode)
		assert.Equal(t, models.PurposeLogin, gotPurpose)
		assert.Equal(t, expires, gotExpires)
	})

	t.Run("partial slot counts as empty", func(t *testing.T) {
		code := "123456"
		_, _, _, ok := (&models.Account{OTPCode: &code}).PendingOTP()
		assert.False(t, ok)
	})
}

func TestRecoveryStatus_Valid(t *testing.T) {
	for _, s := range []models.RecoveryStatus{
		models.RecoveryPending, models.RecoveryApproved, models.RecoveryDenied, models.RecoveryClosed,
	} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, models.RecoveryStatus("archived").Valid())
}
