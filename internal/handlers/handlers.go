// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the JSON API.
package handlers

import (
	"net/http"

	"codeberg.org/psuyearbook/yearbook-api/internal/middleware"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/recovery"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// Deps are the services the handlers delegate to.
type Deps struct {
	Auth         *auth.Service
	Verification *verification.Service
	Recovery     *recovery.Service
	Evidence     *evidence.Service
	Tokens       auth.Tokens
	// ExposeDeliveryErrors echoes notifier error text in responses.
	ExposeDeliveryErrors bool
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	auth         *auth.Service
	verification *verification.Service
	recovery     *recovery.Service
	evidence     *evidence.Service
	tokens       auth.Tokens
	exposeDetail bool
}

// New creates a new Handlers instance.
func New(d Deps) *Handlers {
	return &Handlers{
		auth:         d.Auth,
		verification: d.Verification,
		recovery:     d.Recovery,
		evidence:     d.Evidence,
		tokens:       d.Tokens,
		exposeDetail: d.ExposeDeliveryErrors,
	}
}

// Register mounts every route on e.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api/v1")
	challenge := func(stage session.Stage) echo.MiddlewareFunc {
		return middleware.RequireChallenge(h.tokens.Challenges, stage)
	}

	a := api.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/otp/verify", h.VerifyLoginOTP, challenge(session.StageTwoFactor))
	a.POST("/otp/resend", h.ResendLoginOTP, challenge(session.StageTwoFactor))
	a.POST("/security-questions", h.VerifySecurityQuestions, challenge(session.StageSecurityQuestions))
	a.POST("/email-setup/send", h.SendSetupOTP, challenge(session.StageEmailSetup))
	a.POST("/email-setup/verify", h.CompleteSetup, challenge(session.StageEmailSetup))

	r := api.Group("/recovery")
	r.POST("/start", h.StartReset)
	r.POST("/reset", h.ResetPassword, challenge(session.StageRecovery))
	r.POST("/requests", h.SubmitRecovery, challenge(session.StageRecovery))
	r.POST("/status", h.RecoveryStatus)

	api.POST("/admin/login", h.AdminLogin)
	admin := api.Group("/admin", middleware.RequireAdmin(h.tokens.Sessions))
	admin.GET("/recovery-requests", h.ListRecoveryRequests)
	admin.GET("/recovery-requests/:id", h.GetRecoveryRequest)
	admin.GET("/recovery-requests/:id/evidence/:kind", h.RecoveryEvidence)
	admin.POST("/recovery-requests/:id/approve", h.ApproveRecovery)
	admin.POST("/recovery-requests/:id/deny", h.DenyRecovery)

	student := middleware.RequireSession(h.tokens.Sessions, session.RoleStudent)
	acc := api.Group("/account", student)
	acc.GET("", h.Account)
	acc.POST("/notifications/checked", h.NotificationsChecked)

	s := api.Group("/settings", student)
	s.POST("/otp", h.SendSettingsOTP)
	s.POST("/otp/verify", h.CheckSettingsOTP)
	s.POST("/email", h.UpdateEmail)
	s.POST("/password", h.ChangePassword)
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
