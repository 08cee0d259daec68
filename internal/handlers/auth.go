// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/middleware"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/verification"
	"github.com/labstack/echo/v4"
)

// stepResponse reports where a login or onboarding flow stands.
type stepResponse struct { //nolint:govet // fieldalignment: readability over optimization
	Status             string     `json:"status"`
	Message            string     `json:"message"`
	AccountID          int64      `json:"account_id,omitempty"`
	StudentNumber      string     `json:"student_number,omitempty"`
	Email              string     `json:"email,omitempty"`
	ChallengeToken     string     `json:"challenge_token,omitempty"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty"`
	SessionToken       string     `json:"session_token,omitempty"`
	DeliveryFailed     bool       `json:"delivery_failed,omitempty"`
	Detail             string     `json:"detail,omitempty"`
}

var stateMessages = map[auth.State]string{
	auth.StateFirstTimeVerification: "login_first_time",
	auth.StateEmailSetupRequired:    "login_email_setup",
	auth.StateTwoFactorPending:      "login_two_factor",
	auth.StateAuthenticated:         "login_success",
}

func (h *Handlers) step(c echo.Context, res *auth.Result, messageID string) error {
	resp := stepResponse{
		Status:        string(res.State),
		AccountID:     res.AccountID,
		StudentNumber: res.StudentNumber,
		Email:         res.Email,
		SessionToken:  res.SessionToken,
	}
	if res.Challenge != nil {
		resp.ChallengeToken = res.Challenge.Token
		resp.ChallengeExpiresAt = &res.Challenge.ExpiresAt
	}
	resp.DeliveryFailed, resp.Detail = h.delivery(res.DeliveryErr)
	if resp.DeliveryFailed && res.State == auth.StateTwoFactorPending {
		messageID = "login_two_factor_delivery_failed"
	}
	resp.Message = i18n.TData(c.Request().Context(), messageID, map[string]any{"Email": res.Email})
	return c.JSON(http.StatusOK, resp)
}

type loginRequest struct {
	StudentNumber string `json:"student_number" form:"student_number"`
	Password      string `json:"password" form:"password"`
}

// Login runs the password step of the student login.
func (h *Handlers) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	res, err := h.auth.Login(c.Request().Context(), req.StudentNumber, req.Password)
	if err != nil {
		return h.fail(c, err, rejectedMessage(err))
	}
	return h.step(c, res, stateMessages[res.State])
}

type codeRequest struct {
	Code string `json:"code" form:"code"`
}

// VerifyLoginOTP completes a two-factor login.
func (h *Handlers) VerifyLoginOTP(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	res, err := h.auth.VerifyLoginOTP(c.Request().Context(), middleware.ChallengeAccount(c), req.Code)
	if err != nil {
		return h.fail(c, err)
	}
	return h.step(c, res, "login_success")
}

// ResendLoginOTP delivers the login code again.
func (h *Handlers) ResendLoginOTP(c echo.Context) error {
	res, err := h.auth.ResendLoginOTP(c.Request().Context(), middleware.ChallengeAccount(c))
	if err != nil {
		return h.fail(c, err)
	}
	return h.step(c, res, "otp_resent")
}

type securityAnswersRequest struct {
	MotherLastname string `json:"mother_lastname" form:"mother_lastname"`
	Barangay       string `json:"barangay" form:"barangay"`
	Course         string `json:"course" form:"course"`
}

// VerifySecurityQuestions checks the first-time verification answers.
func (h *Handlers) VerifySecurityQuestions(c echo.Context) error {
	var req securityAnswersRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	res, err := h.verification.VerifySecurityAnswers(c.Request().Context(), middleware.ChallengeAccount(c), verification.Answers{
		MotherLastname: req.MotherLastname,
		Barangay:       req.Barangay,
		Course:         req.Course,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return h.step(c, res, "security_passed")
}

type emailSetupRequest struct {
	Email string `json:"email" form:"email"`
	Code  string `json:"code" form:"code"`
}

// SendSetupOTP sends an email setup code to the candidate address.
func (h *Handlers) SendSetupOTP(c echo.Context) error {
	var req emailSetupRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	accountID := middleware.ChallengeAccount(c)
	sent, err := h.verification.SendSetupOTP(c.Request().Context(), accountID, req.Email)
	if err != nil {
		return h.fail(c, err)
	}

	resp := stepResponse{
		Status:    string(auth.StateEmailSetupRequired),
		AccountID: accountID,
		Email:     sent.Email,
	}
	resp.DeliveryFailed, resp.Detail = h.delivery(sent.DeliveryErr)
	messageID := "email_setup_sent"
	if resp.DeliveryFailed {
		messageID = "error_delivery_failed"
	}
	resp.Message = i18n.TData(c.Request().Context(), messageID, map[string]any{"Email": sent.Email})
	return c.JSON(http.StatusOK, resp)
}

// CompleteSetup verifies the setup code and finishes onboarding.
func (h *Handlers) CompleteSetup(c echo.Context) error {
	var req emailSetupRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	res, err := h.verification.CompleteSetup(c.Request().Context(), middleware.ChallengeAccount(c), req.Email, req.Code)
	if err != nil {
		return h.fail(c, err)
	}
	return h.step(c, res, "email_setup_done")
}

type adminLoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type adminLoginResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	AdminID      int64  `json:"admin_id"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	SessionToken string `json:"session_token"`
}

// AdminLogin authenticates an administrator.
func (h *Handlers) AdminLogin(c echo.Context) error {
	var req adminLoginRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	res, err := h.auth.AdminLogin(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, err, rejectedMessage(err))
	}
	return c.JSON(http.StatusOK, adminLoginResponse{
		Status:       string(auth.StateAuthenticated),
		Message:      i18n.T(c.Request().Context(), "admin_login_success"),
		AdminID:      res.Admin.ID,
		Username:     res.Admin.Username,
		DisplayName:  res.Admin.DisplayName,
		SessionToken: res.SessionToken,
	})
}
