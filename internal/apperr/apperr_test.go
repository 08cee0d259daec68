// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"sentinel", apperr.ErrNotFound, apperr.KindNotFound},
		{"invalid", apperr.Invalid("email %q is malformed", "x@"), apperr.KindInvalidInput},
		{"store", apperr.Store("insert", cause), apperr.KindStoreUnavailable},
		{"delivery", apperr.Delivery(cause), apperr.KindDeliveryFailed},
		{"wrapped twice", fmt.Errorf("login: %w", apperr.ErrOTPInvalidOrExpired), apperr.KindOTPInvalid},
		{"plain error", cause, apperr.KindInternal},
		{"nil", nil, apperr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(tt.err))
		})
	}
}

func TestWrappersKeepCause(t *testing.T) {
	cause := errors.New("connection refused")

	err := apperr.Store("load account", cause)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "load account")

	err = apperr.Delivery(cause)
	assert.ErrorIs(t, err, apperr.ErrDeliveryFailed)
	assert.ErrorIs(t, err, cause)
}

func TestWrappersPassNil(t *testing.T) {
	assert.NoError(t, apperr.Store("noop", nil))
	assert.NoError(t, apperr.Delivery(nil))
}

func TestInvalid(t *testing.T) {
	err := apperr.Invalid("message is required")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "invalid input: message is required", err.Error())
}
