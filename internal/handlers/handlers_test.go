// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/handlers"
	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	"codeberg.org/psuyearbook/yearbook-api/internal/middleware"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/otp"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/recovery"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/verification"
	"codeberg.org/psuyearbook/yearbook-api/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	studentNumber = "21-00001"
	password      = "correct-horse-7"
	address       = "juan.dc@gmail.com"
)

func init() {
	_ = i18n.Init()
}

type server struct {
	e        *echo.Echo
	repo     *repository.Repository
	notifier *testutil.FakeNotifier
	store    *testutil.MemStore
	tokens   auth.Tokens
}

type serverOption func(*config.AuthConfig)

func exposeDeliveryErrors() serverOption {
	return func(c *config.AuthConfig) { c.ExposeDeliveryErrors = true }
}

func directLogin() serverOption {
	return func(c *config.AuthConfig) { c.LoginPolicy = config.LoginPolicyDirect }
}

func newServer(t *testing.T, opts ...serverOption) *server {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	s := &server{
		repo:     repo,
		notifier: &testutil.FakeNotifier{},
		store:    testutil.NewMemStore(),
	}

	cfg := &config.AuthConfig{LoginPolicy: config.LoginPolicyTwoFactor, BcryptCost: bcrypt.MinCost}
	for _, opt := range opts {
		opt(cfg)
	}

	sessions, err := session.NewManager(&config.SessionConfig{MaxAge: 3600})
	require.NoError(t, err)
	s.tokens = auth.Tokens{
		Sessions:   sessions,
		Challenges: session.NewChallenges("test-secret", 15*time.Minute),
	}

	engine := otp.NewEngine(repo, s.notifier)
	l := ledger.New()
	ev := evidence.NewService(s.store, 1<<20)
	authSvc := auth.NewService(repo, cfg, engine, l, s.tokens)

	h := handlers.New(handlers.Deps{
		Auth:                 authSvc,
		Verification:         verification.NewService(repo, engine, l, s.tokens),
		Recovery:             recovery.NewService(repo, ev, engine, l, s.notifier, s.tokens, authSvc.Hasher()),
		Evidence:             ev,
		Tokens:               s.tokens,
		ExposeDeliveryErrors: cfg.ExposeDeliveryErrors,
	})

	s.e = echo.New()
	s.e.Use(middleware.Locale())
	h.Register(s.e)
	return s
}

type call struct {
	method    string
	path      string
	body      string
	challenge string
	session   string
	headers   map[string]string
}

func (s *server) do(c call) *httptest.ResponseRecorder {
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if c.challenge != "" {
		req.Header.Set(middleware.ChallengeHeader, c.challenge)
	}
	if c.session != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.session)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) post(path, body string) *httptest.ResponseRecorder {
	return s.do(call{method: http.MethodPost, path: path, body: body})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// studentSession returns a session token for an existing account.
func (s *server) studentSession(t *testing.T, accountID int64) string {
	t.Helper()
	token, err := s.tokens.Sessions.Issue(accountID, session.RoleStudent)
	require.NoError(t, err)
	return token
}

func (s *server) challenge(t *testing.T, accountID int64, stage session.Stage) string {
	t.Helper()
	ch, err := s.tokens.Challenges.Issue(accountID, stage)
	require.NoError(t, err)
	return ch.Token
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	rec := s.do(call{method: http.MethodGet, path: "/health"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestErrorBody_Shape(t *testing.T) {
	s := newServer(t)

	rec := s.post("/api/v1/auth/login", `{"student_number":"","password":""}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "invalid_input", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, body, "detail")
}

func TestErrorBody_MalformedJSON(t *testing.T) {
	s := newServer(t)

	rec := s.post("/api/v1/auth/login", `{"student_number":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode(t, rec)["error"])
}

func TestErrorBody_Localized(t *testing.T) {
	s := newServer(t)

	en := s.post("/api/v1/auth/login", `{"student_number":"x","password":"y"}`)
	fil := s.do(call{
		method:  http.MethodPost,
		path:    "/api/v1/auth/login",
		body:    `{"student_number":"x","password":"y"}`,
		headers: map[string]string{"Accept-Language": "fil"},
	})

	require.Equal(t, http.StatusUnauthorized, en.Code)
	require.Equal(t, http.StatusUnauthorized, fil.Code)
	assert.NotEqual(t, decode(t, en)["message"], decode(t, fil)["message"])
}

func TestDeliveryDetail_OperatorFlag(t *testing.T) {
	for _, expose := range []bool{false, true} {
		opts := []serverOption{}
		if expose {
			opts = append(opts, exposeDeliveryErrors())
		}
		s := newServer(t, opts...)
		testutil.NewTestAccount(t, s.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
		s.notifier.Fail(errors.New("smtp: 554 relay denied"))

		rec := s.post("/api/v1/auth/login", `{"student_number":"21-00001","password":"correct-horse-7"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "two_factor_pending", body["status"])
		assert.Equal(t, true, body["delivery_failed"])
		if expose {
			assert.Contains(t, body["detail"], "relay denied")
		} else {
			assert.NotContains(t, body, "detail")
		}
	}
}
