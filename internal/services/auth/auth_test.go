// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/repository"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/auth"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/ledger"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/otp"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/session"
	"codeberg.org/psuyearbook/yearbook-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	studentNumber = "21-00001"
	password      = "correct-horse"
	address       = "juan.dc@gmail.com"
)

type fixture struct {
	repo     *repository.Repository
	notifier *testutil.FakeNotifier
	clock    *testutil.Clock
	tokens   auth.Tokens
	svc      *auth.Service
}

func setup(t *testing.T, policy string) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	f := &fixture{
		repo:     repo,
		notifier: &testutil.FakeNotifier{},
		clock:    testutil.NewClock(),
	}

	sessions, err := session.NewManager(&config.SessionConfig{MaxAge: 3600}, session.WithManagerClock(f.clock.Now))
	require.NoError(t, err)
	f.tokens = auth.Tokens{
		Sessions:   sessions,
		Challenges: session.NewChallenges("test-secret", 15*time.Minute, session.WithChallengeClock(f.clock.Now)),
	}

	cfg := &config.AuthConfig{LoginPolicy: policy, MaskEmail: true, BcryptCost: bcrypt.MinCost}
	engine := otp.NewEngine(repo, f.notifier, otp.WithClock(f.clock.Now))
	f.svc = auth.NewService(repo, cfg, engine, ledger.New().WithClock(f.clock.Now), f.tokens)
	return f
}

func (f *fixture) hasActivity(t *testing.T, accountID int64, action string) bool {
	t.Helper()
	ok, err := f.repo.HasActivity(context.Background(), accountID, action)
	require.NoError(t, err)
	return ok
}

func TestLogin_InvalidInput(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)

	_, err := f.svc.Login(context.Background(), "", password)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.Login(context.Background(), studentNumber, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestLogin_Rejected(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))

	_, err := f.svc.Login(context.Background(), "99-99999", password)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), studentNumber, "wrong-password")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	assert.Zero(t, f.notifier.OTPCount())
	events, err := f.repo.ListActivity(context.Background(), acc.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLogin_FirstTimeVerification(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.WithEmail(address))

	res, err := f.svc.Login(context.Background(), " "+studentNumber+" ", password)
	require.NoError(t, err)

	assert.Equal(t, auth.StateFirstTimeVerification, res.State)
	assert.Equal(t, acc.ID, res.AccountID)
	assert.Empty(t, res.SessionToken)
	require.NotNil(t, res.Challenge)

	id, err := f.tokens.Challenges.Verify(res.Challenge.Token, session.StageSecurityQuestions)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)

	assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionLoginPendingSecurity))
	assert.Zero(t, f.notifier.OTPCount())
}

func TestLogin_EmailSetupRequired(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified())

	res, err := f.svc.Login(context.Background(), studentNumber, password)
	require.NoError(t, err)

	assert.Equal(t, auth.StateEmailSetupRequired, res.State)
	require.NotNil(t, res.Challenge)
	assert.Equal(t, session.StageEmailSetup, res.Challenge.Stage)
	assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionLoginEmailMissing))
}

func TestLogin_TwoFactor(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))

	res, err := f.svc.Login(context.Background(), studentNumber, password)
	require.NoError(t, err)

	assert.Equal(t, auth.StateTwoFactorPending, res.State)
	assert.Equal(t, "j*****c@gmail.com", res.Email)
	assert.NoError(t, res.DeliveryErr)
	assert.Empty(t, res.SessionToken)
	require.NotNil(t, res.Challenge)
	assert.Equal(t, session.StageTwoFactor, res.Challenge.Stage)

	sent := f.notifier.LastOTP()
	assert.Equal(t, address, sent.To)
	assert.Equal(t, models.PurposeLogin, sent.Purpose)
	assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionLoginCodeSent))
}

func TestLogin_TwoFactorDeliveryFailure(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	f.notifier.Fail(errors.New("relay refused"))

	res, err := f.svc.Login(context.Background(), studentNumber, password)
	require.NoError(t, err)

	assert.Equal(t, auth.StateTwoFactorPending, res.State)
	assert.ErrorIs(t, res.DeliveryErr, apperr.ErrDeliveryFailed)

	reloaded := testutil.ReloadAccount(t, f.repo, acc.ID)
	_, purpose, _, ok := reloaded.PendingOTP()
	assert.True(t, ok)
	assert.Equal(t, models.PurposeLogin, purpose)
}

func TestLogin_DirectPolicy(t *testing.T) {
	f := setup(t, config.LoginPolicyDirect)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))

	res, err := f.svc.Login(context.Background(), studentNumber, password)
	require.NoError(t, err)

	assert.Equal(t, auth.StateAuthenticated, res.State)
	assert.Nil(t, res.Challenge)
	p, err := f.tokens.Sessions.Parse(res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, p.Subject)
	assert.Equal(t, session.RoleStudent, p.Role)

	assert.Zero(t, f.notifier.OTPCount())
	assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionLoginDirect))
}

func TestVerifyLoginOTP(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.Login(ctx, studentNumber, password)
	require.NoError(t, err)
	code := f.notifier.LastOTP().Code

	t.Run("wrong code leaves the code usable", func(t *testing.T) {
		_, err := f.svc.VerifyLoginOTP(ctx, acc.ID, "000000")
		assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
		assert.False(t, f.hasActivity(t, acc.ID, ledger.ActionLoginTwoFactor))
	})

	t.Run("correct code authenticates", func(t *testing.T) {
		res, err := f.svc.VerifyLoginOTP(ctx, acc.ID, code)
		require.NoError(t, err)
		assert.Equal(t, auth.StateAuthenticated, res.State)
		assert.NotEmpty(t, res.SessionToken)
		assert.True(t, f.hasActivity(t, acc.ID, ledger.ActionLoginTwoFactor))
	})

	t.Run("replay fails", func(t *testing.T) {
		_, err := f.svc.VerifyLoginOTP(ctx, acc.ID, code)
		assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := f.svc.VerifyLoginOTP(ctx, acc.ID, " ")
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}

func TestVerifyLoginOTP_Expired(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.Login(ctx, studentNumber, password)
	require.NoError(t, err)

	f.clock.Advance(5*time.Minute + time.Second)
	_, err = f.svc.VerifyLoginOTP(ctx, acc.ID, f.notifier.LastOTP().Code)
	assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
}

func TestVerifyLoginOTP_SettingsCodeRejected(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.SendSettingsOTP(ctx, acc.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyLoginOTP(ctx, acc.ID, f.notifier.LastOTP().Code)
	assert.ErrorIs(t, err, apperr.ErrOTPInvalidOrExpired)
}

func TestResendLoginOTP(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password, testutil.Verified(), testutil.WithEmail(address))
	ctx := context.Background()

	_, err := f.svc.Login(ctx, studentNumber, password)
	require.NoError(t, err)
	first := f.notifier.LastOTP().Code

	res, err := f.svc.ResendLoginOTP(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.StateTwoFactorPending, res.State)
	assert.Equal(t, 2, f.notifier.OTPCount())
	assert.Equal(t, first, f.notifier.LastOTP().Code)
}

func TestResendLoginOTP_NotAwaitingCode(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	acc := testutil.NewTestAccount(t, f.repo, studentNumber, password)

	_, err := f.svc.ResendLoginOTP(context.Background(), acc.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.ResendLoginOTP(context.Background(), 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAdminLogin(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	admin := testutil.NewTestAdmin(t, f.repo, "registrar", "admin-secret")
	ctx := context.Background()

	res, err := f.svc.AdminLogin(ctx, "registrar", "admin-secret")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, res.Admin.ID)

	p, err := f.tokens.Sessions.Parse(res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, p.Role)

	_, err = f.svc.AdminLogin(ctx, "registrar", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = f.svc.AdminLogin(ctx, "nobody", "admin-secret")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = f.svc.AdminLogin(ctx, "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCreateAdministrator(t *testing.T) {
	f := setup(t, config.LoginPolicyTwoFactor)
	ctx := context.Background()

	admin, err := f.svc.CreateAdministrator(ctx, "registrar", "long-enough-secret", "Registrar")
	require.NoError(t, err)
	assert.Equal(t, "registrar", admin.Username)

	_, err = f.svc.CreateAdministrator(ctx, "registrar", "long-enough-secret", "Registrar")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.CreateAdministrator(ctx, "other", "short", "Other")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
