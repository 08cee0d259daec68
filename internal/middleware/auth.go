// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds the echo middleware that authenticates API
// requests.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
	"github.com/labstack/echo/v4"
)

const (
	principalKey        = "principal"
	challengeAccountKey = "challenge_account"

	// ChallengeHeader carries a challenge token when the Authorization
	// header is not used.
	ChallengeHeader = "X-Challenge-Token"
)

// PrincipalFrom returns the session principal stored by RequireSession.
func PrincipalFrom(c echo.Context) *session.Principal {
	p, _ := c.Get(principalKey).(*session.Principal)
	return p
}

// ChallengeAccount returns the account id bound by RequireChallenge.
func ChallengeAccount(c echo.Context) int64 {
	id, _ := c.Get(challengeAccountKey).(int64)
	return id
}

// RequireSession rejects requests without a valid session bearer token of
// the given role.
func RequireSession(sessions *session.Manager, role session.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}
			p, err := sessions.Parse(token)
			if err != nil {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}
			if p.Role != role {
				return deny(c, http.StatusForbidden, "forbidden")
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// RequireAdmin is RequireSession for administrator tokens.
func RequireAdmin(sessions *session.Manager) echo.MiddlewareFunc {
	return RequireSession(sessions, session.RoleAdmin)
}

// RequireChallenge rejects requests without a challenge token for stage.
// When the body names an account_id it must match the token's subject.
func RequireChallenge(challenges *session.Challenges, stage session.Stage) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			token := req.Header.Get(ChallengeHeader)
			if token == "" {
				token = bearerToken(req)
			}
			if token == "" {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}
			accountID, err := challenges.Verify(token, stage)
			if err != nil {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}
			claimed, err := claimedAccount(req)
			if err != nil {
				return err
			}
			if claimed != 0 && claimed != accountID {
				return deny(c, http.StatusForbidden, "forbidden")
			}
			c.Set(challengeAccountKey, accountID)
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// claimedAccount peeks at the account_id of a JSON or form body and
// restores the body for the handler.
func claimedAccount(r *http.Request) (int64, error) {
	ctype := r.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		if r.Body == nil {
			return 0, nil
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return 0, echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		var peek struct {
			AccountID int64 `json:"account_id"`
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return 0, nil
		}
		if err := json.Unmarshal(body, &peek); err != nil {
			// The handler reports malformed bodies.
			return 0, nil
		}
		return peek.AccountID, nil
	case strings.HasPrefix(ctype, echo.MIMEMultipartForm), strings.HasPrefix(ctype, echo.MIMEApplicationForm):
		v := r.FormValue("account_id")
		if v == "" {
			return 0, nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, nil
		}
		return id, nil
	}
	return 0, nil
}

func deny(c echo.Context, status int, kind string) error {
	return c.JSON(status, map[string]string{
		"status":  "error",
		"error":   kind,
		"message": i18n.T(c.Request().Context(), "error_"+kind),
	})
}
