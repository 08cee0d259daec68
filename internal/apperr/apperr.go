// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindNotFound           Kind = "not_found"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindOTPInvalid         Kind = "otp_invalid_or_expired"
	KindConflict           Kind = "conflict"
	KindDeliveryFailed     Kind = "delivery_failed"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindInternal           Kind = "internal"
)

// Error is a sentinel carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrOTPInvalidOrExpired = &Error{Kind: KindOTPInvalid, Message: "otp invalid or expired"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "conflict"}
	ErrDeliveryFailed      = &Error{Kind: KindDeliveryFailed, Message: "delivery failed"}
	ErrStoreUnavailable    = &Error{Kind: KindStoreUnavailable, Message: "store unavailable"}
)

// Invalid wraps ErrInvalidInput with a field-level reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Store wraps a persistence failure as ErrStoreUnavailable.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Delivery wraps a notifier failure as ErrDeliveryFailed.
func Delivery(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
}

// KindOf returns the Kind of the first taxonomy error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
