// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"github.com/labstack/echo/v4"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Status   string   `json:"status"`
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Problems []string `json:"problems,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindInvalidInput:       http.StatusBadRequest,
	apperr.KindNotFound:           http.StatusNotFound,
	apperr.KindInvalidCredentials: http.StatusUnauthorized,
	apperr.KindOTPInvalid:         http.StatusUnauthorized,
	apperr.KindConflict:           http.StatusConflict,
	apperr.KindDeliveryFailed:     http.StatusBadGateway,
	apperr.KindStoreUnavailable:   http.StatusServiceUnavailable,
	apperr.KindInternal:           http.StatusInternalServerError,
}

var kindMessage = map[apperr.Kind]string{
	apperr.KindInvalidInput:       "error_invalid_input",
	apperr.KindNotFound:           "error_not_found",
	apperr.KindInvalidCredentials: "error_invalid_credentials",
	apperr.KindOTPInvalid:         "error_otp_invalid",
	apperr.KindConflict:           "error_conflict",
	apperr.KindDeliveryFailed:     "error_delivery_failed",
	apperr.KindStoreUnavailable:   "error_store_unavailable",
	apperr.KindInternal:           "error_internal",
}

// fail writes err as an error response. messageID overrides the default
// message of the error's kind.
func (h *Handlers) fail(c echo.Context, err error, messageID ...string) error {
	ctx := c.Request().Context()
	kind := apperr.KindOf(err)
	status := kindStatus[kind]

	id := kindMessage[kind]
	if len(messageID) > 0 {
		id = messageID[0]
	}

	resp := errorResponse{Status: "error", Error: string(kind)}

	var pve *auth.PasswordValidationError
	switch {
	case errors.As(err, &pve):
		resp.Problems = pve.Codes()
	case errors.Is(err, evidence.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
		id = "error_too_large"
	}
	resp.Message = i18n.T(ctx, id)

	if kind == apperr.KindDeliveryFailed && h.exposeDetail {
		resp.Detail = err.Error()
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "kind", kind, "error", err)
	}
	return c.JSON(status, resp)
}

// badRequest reports a body that could not be decoded.
func (h *Handlers) badRequest(c echo.Context) error {
	return h.fail(c, apperr.Invalid("malformed request body"))
}

// delivery fills the delivery fields of a response that succeeded although a
// message could not be sent.
func (h *Handlers) delivery(err error) (failed bool, detail string) {
	if err == nil {
		return false, ""
	}
	if h.exposeDetail {
		detail = err.Error()
	}
	return true, detail
}

// rejectedMessage keeps failed sign-ins indistinguishable: unknown users and
// wrong passwords get the same body.
func rejectedMessage(err error) string {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInvalidCredentials {
		return "login_rejected"
	}
	return kindMessage[kind]
}
