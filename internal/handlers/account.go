// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/middleware"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"github.com/labstack/echo/v4"
)

type accountResponse struct { //nolint:govet // fieldalignment: readability over optimization
	Status   string                  `json:"status"`
	Message  string                  `json:"message"`
	Account  *models.Account         `json:"account"`
	Activity []models.ActivityEvent  `json:"activity"`
	Recovery *models.RecoveryRequest `json:"recovery,omitempty"`
}

// Account returns the signed-in student's account summary.
func (h *Handlers) Account(c echo.Context) error {
	ctx := c.Request().Context()
	sum, err := h.auth.Summary(ctx, middleware.PrincipalFrom(c).Subject)
	if err != nil {
		return h.fail(c, err)
	}
	activity := sum.Activity
	if activity == nil {
		activity = []models.ActivityEvent{}
	}
	return c.JSON(http.StatusOK, accountResponse{
		Status:   string(sum.Account.Status),
		Message:  i18n.T(ctx, "account_loaded"),
		Account:  sum.Account,
		Activity: activity,
		Recovery: sum.Recovery,
	})
}

// NotificationsChecked records that the student opened notifications.
func (h *Handlers) NotificationsChecked(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.auth.MarkNotificationsChecked(ctx, middleware.PrincipalFrom(c).Subject); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": i18n.T(ctx, "notifications_checked"),
	})
}

type settingsCodeResponse struct { //nolint:govet // fieldalignment: readability over optimization
	Status         string     `json:"status"`
	Message        string     `json:"message"`
	Email          string     `json:"email"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	DeliveryFailed bool       `json:"delivery_failed,omitempty"`
	Detail         string     `json:"detail,omitempty"`
}

// SendSettingsOTP sends a settings code to the email on file.
func (h *Handlers) SendSettingsOTP(c echo.Context) error {
	ctx := c.Request().Context()
	sent, err := h.auth.SendSettingsOTP(ctx, middleware.PrincipalFrom(c).Subject)
	if err != nil {
		return h.fail(c, err)
	}

	resp := settingsCodeResponse{Status: "otp_sent", Email: sent.Email}
	if sent.Issued != nil {
		resp.ExpiresAt = &sent.Issued.ExpiresAt
	}
	resp.DeliveryFailed, resp.Detail = h.delivery(sent.DeliveryErr)
	messageID := "settings_otp_sent"
	if resp.DeliveryFailed {
		messageID = "error_delivery_failed"
	}
	resp.Message = i18n.TData(ctx, messageID, map[string]any{"Email": sent.Email})
	return c.JSON(http.StatusOK, resp)
}

// CheckSettingsOTP reports whether a settings code is valid without using it.
func (h *Handlers) CheckSettingsOTP(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	ctx := c.Request().Context()
	if err := h.auth.CheckSettingsOTP(ctx, middleware.PrincipalFrom(c).Subject, req.Code); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "otp_valid",
		"message": i18n.T(ctx, "settings_otp_valid"),
	})
}

type updateEmailRequest struct {
	Code  string `json:"code" form:"code"`
	Email string `json:"email" form:"email"`
}

// UpdateEmail replaces the email on file.
func (h *Handlers) UpdateEmail(c echo.Context) error {
	var req updateEmailRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	ctx := c.Request().Context()
	address, err := h.auth.UpdateEmail(ctx, middleware.PrincipalFrom(c).Subject, req.Code, req.Email)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "email_updated",
		"message": i18n.T(ctx, "settings_email_updated"),
		"email":   address,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" form:"current_password"`
	NewPassword     string `json:"new_password" form:"new_password"`
}

// ChangePassword changes the password of the signed-in student.
func (h *Handlers) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	ctx := c.Request().Context()
	if err := h.auth.ChangePassword(ctx, middleware.PrincipalFrom(c).Subject, req.CurrentPassword, req.NewPassword); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "password_changed",
		"message": i18n.T(ctx, "settings_password_changed"),
	})
}
