// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/middleware"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/recovery"
	"github.com/labstack/echo/v4"
)

// evidenceURLTTL bounds presigned evidence links.
const evidenceURLTTL = 5 * time.Minute

type studentNumberRequest struct {
	StudentNumber string `json:"student_number" form:"student_number"`
}

type resetStartResponse struct { //nolint:govet // fieldalignment: readability over optimization
	Status             string     `json:"status"`
	Message            string     `json:"message"`
	AccountID          int64      `json:"account_id"`
	Email              string     `json:"email,omitempty"`
	ChallengeToken     string     `json:"challenge_token"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty"`
	DeliveryFailed     bool       `json:"delivery_failed,omitempty"`
	Detail             string     `json:"detail,omitempty"`
}

// StartReset begins a forgotten-password flow.
func (h *Handlers) StartReset(c echo.Context) error {
	var req studentNumberRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	ctx := c.Request().Context()
	res, err := h.recovery.StartReset(ctx, req.StudentNumber)
	if err != nil {
		return h.fail(c, err)
	}

	resp := resetStartResponse{
		Status:             string(res.State),
		AccountID:          res.AccountID,
		Email:              res.Email,
		ChallengeToken:     res.Challenge.Token,
		ChallengeExpiresAt: &res.Challenge.ExpiresAt,
	}
	resp.DeliveryFailed, resp.Detail = h.delivery(res.DeliveryErr)

	messageID := "recovery_no_email"
	switch {
	case resp.DeliveryFailed:
		messageID = "error_delivery_failed"
	case res.State == recovery.ResetEmailFound:
		messageID = "recovery_email_found"
	}
	resp.Message = i18n.TData(ctx, messageID, map[string]any{"Email": res.Email})
	return c.JSON(http.StatusOK, resp)
}

type resetPasswordRequest struct {
	Code        string `json:"code" form:"code"`
	NewPassword string `json:"new_password" form:"new_password"`
}

// ResetPassword sets a new password with a reset code.
func (h *Handlers) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	ctx := c.Request().Context()
	if err := h.recovery.ResetPassword(ctx, middleware.ChallengeAccount(c), req.Code, req.NewPassword); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "password_reset",
		"message": i18n.T(ctx, "recovery_password_reset"),
	})
}

type submitResponse struct { //nolint:govet // fieldalignment: readability over optimization
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID int64  `json:"request_id"`
}

// SubmitRecovery files a manual recovery request. Evidence files are only
// accepted as multipart uploads.
func (h *Handlers) SubmitRecovery(c echo.Context) error {
	ctx := c.Request().Context()
	sub := recovery.Submission{}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		sub.Message = c.FormValue("message")

		idProof, closeID, err := formFile(c, "id_proof")
		if err != nil {
			return h.fail(c, err)
		}
		defer closeID()
		selfie, closeSelfie, err := formFile(c, "selfie_proof")
		if err != nil {
			return h.fail(c, err)
		}
		defer closeSelfie()

		if idProof != nil {
			sub.IDProof = &evidence.File{Kind: evidence.KindIDProof, Body: idProof}
		}
		if selfie != nil {
			sub.SelfieProof = &evidence.File{Kind: evidence.KindSelfieProof, Body: selfie}
		}
	} else {
		var req struct {
			Message string `json:"message" form:"message"`
		}
		if err := c.Bind(&req); err != nil {
			return h.badRequest(c)
		}
		sub.Message = req.Message
	}

	created, err := h.recovery.Submit(ctx, middleware.ChallengeAccount(c), sub)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, submitResponse{
		Status:    string(created.Status),
		Message:   i18n.TData(ctx, "recovery_submitted", map[string]any{"ID": created.ID}),
		RequestID: created.ID,
	})
}

// formFile opens an optional upload. A missing field yields a nil reader.
func formFile(c echo.Context, name string) (io.Reader, func(), error) {
	fh, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apperr.Invalid("read %s: %v", name, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, apperr.Invalid("open %s: %v", name, err)
	}
	return f, func() { closeQuietly(f) }, nil
}

func closeQuietly(f multipart.File) {
	_ = f.Close()
}

type statusResponse struct { //nolint:govet // fieldalignment: readability over optimization
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	RequestID int64      `json:"request_id,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// RecoveryStatus reports the student's latest recovery request.
func (h *Handlers) RecoveryStatus(c echo.Context) error {
	var req studentNumberRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	ctx := c.Request().Context()
	st, err := h.recovery.CheckStatus(ctx, req.StudentNumber)
	if err != nil {
		return h.fail(c, err)
	}
	if !st.Found {
		return c.JSON(http.StatusOK, statusResponse{
			Status:  "not_found",
			Message: i18n.T(ctx, "recovery_status_not_found"),
		})
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:    string(st.Status),
		Message:   i18n.TData(ctx, "recovery_status_found", map[string]any{"Status": st.Status}),
		RequestID: st.RequestID,
		Notes:     st.Notes,
		CreatedAt: &st.CreatedAt,
	})
}

type listResponse struct {
	Status   string                          `json:"status"`
	Message  string                          `json:"message"`
	Requests []models.RecoveryRequestListing `json:"requests"`
}

// ListRecoveryRequests returns the administrator queue.
func (h *Handlers) ListRecoveryRequests(c echo.Context) error {
	ctx := c.Request().Context()
	reqs, err := h.recovery.ListRequests(ctx, models.RecoveryStatus(c.QueryParam("status")))
	if err != nil {
		return h.fail(c, err)
	}
	if reqs == nil {
		reqs = []models.RecoveryRequestListing{}
	}
	return c.JSON(http.StatusOK, listResponse{
		Status:   "ok",
		Message:  i18n.T(ctx, "recovery_list"),
		Requests: reqs,
	})
}

type requestResponse struct {
	Status  string                  `json:"status"`
	Message string                  `json:"message"`
	Request *models.RecoveryRequest `json:"request"`
}

// GetRecoveryRequest returns one request.
func (h *Handlers) GetRecoveryRequest(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, err)
	}
	req, err := h.recovery.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, requestResponse{
		Status:  string(req.Status),
		Message: i18n.T(c.Request().Context(), "recovery_list"),
		Request: req,
	})
}

// RecoveryEvidence redirects to a presigned URL or streams the file.
func (h *Handlers) RecoveryEvidence(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, err)
	}

	ctx := c.Request().Context()
	ref, err := h.recovery.EvidenceRef(ctx, id, evidence.Kind(c.Param("kind")))
	if err != nil {
		return h.fail(c, err)
	}

	url, ok, err := h.evidence.DownloadURL(ctx, ref, evidenceURLTTL)
	if err != nil {
		return h.fail(c, err)
	}
	if ok {
		return c.Redirect(http.StatusFound, url)
	}

	rc, contentType, err := h.evidence.Open(ctx, ref)
	if err != nil {
		return h.fail(c, err)
	}
	defer rc.Close()
	c.Response().Header().Set("Cache-Control", "private, no-store")
	return c.Stream(http.StatusOK, contentType, rc)
}

type decisionRequest struct {
	Notes string `json:"notes" form:"notes"`
}

type decisionResponse struct { //nolint:govet // fieldalignment: readability over optimization
	Status         string                  `json:"status"`
	Message        string                  `json:"message"`
	Request        *models.RecoveryRequest `json:"request"`
	DeliveryFailed bool                    `json:"delivery_failed,omitempty"`
	Detail         string                  `json:"detail,omitempty"`
}

type decideFunc func(c echo.Context, adminID, requestID int64, notes string) (*recovery.Decision, error)

// ApproveRecovery resets the student's password to the student number.
func (h *Handlers) ApproveRecovery(c echo.Context) error {
	return h.decide(c, "recovery_approved", func(c echo.Context, adminID, requestID int64, notes string) (*recovery.Decision, error) {
		return h.recovery.Approve(c.Request().Context(), adminID, requestID, notes)
	})
}

// DenyRecovery closes a request without touching the account.
func (h *Handlers) DenyRecovery(c echo.Context) error {
	return h.decide(c, "recovery_denied", func(c echo.Context, adminID, requestID int64, notes string) (*recovery.Decision, error) {
		return h.recovery.Deny(c.Request().Context(), adminID, requestID, notes)
	})
}

func (h *Handlers) decide(c echo.Context, messageID string, fn decideFunc) error {
	id, err := pathID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c)
	}

	d, err := fn(c, middleware.PrincipalFrom(c).Subject, id, req.Notes)
	if err != nil {
		return h.fail(c, err)
	}

	resp := decisionResponse{
		Status:  string(d.Request.Status),
		Message: i18n.T(c.Request().Context(), messageID),
		Request: d.Request,
	}
	resp.DeliveryFailed, resp.Detail = h.delivery(d.NotifyErr)
	return c.JSON(http.StatusOK, resp)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid id %q", c.Param("id"))
	}
	return id, nil
}
