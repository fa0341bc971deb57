package services

import (
	"context"
	"testing"
	"time"

	"github.com/foundly/apiserver/internal/token"
	"github.com/foundly/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type sessionFixture struct {
	svc    *SessionService
	users  *memUserRepo
	tokens *memTokenRepo
	mail   *recordingMailer
	signer *token.Signer
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	users := newMemUserRepo()
	tokens := newMemTokenRepo()
	mail := &recordingMailer{}
	signer := token.NewSigner("test-secret")
	svc := NewSessionService(users, NewRefreshService(tokens), signer, mail)
	svc.bcryptCost = bcrypt.MinCost
	return &sessionFixture{svc: svc, users: users, tokens: tokens, mail: mail, signer: signer}
}

func (f *sessionFixture) register(t *testing.T, email, password string) AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  password,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return result
}

func TestRegisterOpensSession(t *testing.T) {
	f := newSessionFixture(t)

	result := f.register(t, "Ada@Example.com", "correct-horse")

	assert.Equal(t, "ada@example.com", result.User.Email)
	assert.Equal(t, types.RoleUser, result.User.Role)
	assert.Equal(t, types.StatusActive, result.User.Status)
	assert.False(t, result.User.EmailVerified)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, int(token.AccessTokenTTL.Seconds()), result.ExpiresIn)

	claims, err := f.signer.Verify(result.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, id)

	require.Len(t, f.mail.verifications, 1)

	stored, err := f.users.GetByID(context.Background(), result.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct-horse")))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newSessionFixture(t)
	f.register(t, "ada@example.com", "correct-horse")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "ADA@example.com",
		Password: "other-password",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "  ", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin(t *testing.T) {
	f := newSessionFixture(t)
	f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	result, err := f.svc.Login(ctx, "ADA@example.com ", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	require.NotNil(t, result.User.LastLoginAt)
	assert.WithinDuration(t, time.Now(), *result.User.LastLoginAt, 5*time.Second)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newSessionFixture(t)
	f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown accounts fail with the same error as wrong passwords.
	_, err = f.svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginBlockedAccount(t *testing.T) {
	f := newSessionFixture(t)
	result := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	until := time.Now().Add(time.Hour)
	user, err := f.users.GetByID(ctx, result.User.ID)
	require.NoError(t, err)
	user.Status = types.StatusBlocked
	user.BlockedUntil = &until
	_, err = f.users.Update(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrAccountBlocked)

	// A lapsed block no longer bars login.
	past := time.Now().Add(-time.Minute)
	user.BlockedUntil = &past
	_, err = f.users.Update(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "ada@example.com", "correct-horse")
	assert.NoError(t, err)
}

func TestLoginInvalidatesPriorSession(t *testing.T) {
	f := newSessionFixture(t)
	first := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	second, err := f.svc.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)

	assert.Equal(t, 1, f.tokens.liveCountForUser(first.User.ID))
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newSessionFixture(t)
	opened := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	refreshed, err := f.svc.Refresh(ctx, opened.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, opened.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, refreshed.AccessToken)

	// The exchanged token is spent.
	_, err = f.svc.Refresh(ctx, opened.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshRejectsDeletedAndBlockedUsers(t *testing.T) {
	f := newSessionFixture(t)
	opened := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	user, err := f.users.GetByID(ctx, opened.User.ID)
	require.NoError(t, err)

	until := time.Now().Add(time.Hour)
	user.Status = types.StatusBlocked
	user.BlockedUntil = &until
	_, err = f.users.Update(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, opened.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountBlocked)

	user.Status = types.StatusDeleted
	_, err = f.users.Update(ctx, user)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, opened.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogout(t *testing.T) {
	f := newSessionFixture(t)
	opened := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, opened.RefreshToken))

	_, err := f.svc.Refresh(ctx, opened.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Logging out twice is a soft failure, not a server error.
	assert.ErrorIs(t, f.svc.Logout(ctx, opened.RefreshToken), ErrInvalidRefreshToken)
}

func TestForgotPassword(t *testing.T) {
	f := newSessionFixture(t)
	f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	require.Len(t, f.mail.resets, 1)

	user, err := f.users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ResetToken)
	require.NotNil(t, user.ResetTokenExpiresAt)
	assert.True(t, user.ResetTokenExpiresAt.After(time.Now()))

	// Unknown addresses succeed silently and send nothing.
	require.NoError(t, f.svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.Len(t, f.mail.resets, 1)
}

func TestResetPassword(t *testing.T) {
	f := newSessionFixture(t)
	opened := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	user, err := f.users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, user.ResetToken, "brand-new-password"))

	// Old password dead, new password live, sessions revoked.
	_, err = f.svc.Login(ctx, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ada@example.com", "brand-new-password")
	assert.NoError(t, err)
	_, err = f.svc.Refresh(ctx, opened.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	assert.Len(t, f.mail.changed, 1)

	// The token is one-shot.
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, user.ResetToken, "yet-another-password"), ErrInvalidResetToken)
}

func TestResetPasswordRejectsExpiredToken(t *testing.T) {
	f := newSessionFixture(t)
	f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	user, err := f.users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute)
	user.ResetTokenExpiresAt = &expired
	_, err = f.users.Update(ctx, user)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, user.ResetToken, "brand-new-password"), ErrInvalidResetToken)
}

func TestResetPasswordRejectsBadInput(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "some-token", "short"), ErrWeakPassword)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "", "brand-new-password"), ErrInvalidResetToken)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "unknown-token", "brand-new-password"), ErrInvalidResetToken)
}

func TestChangePassword(t *testing.T) {
	f := newSessionFixture(t)
	opened := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()
	userID := opened.User.ID

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "wrong-password", "brand-new-password"), ErrWrongPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "correct-horse", "short"), ErrWeakPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "correct-horse", "correct-horse"), ErrPasswordUnchanged)

	require.NoError(t, f.svc.ChangePassword(ctx, userID, "correct-horse", "brand-new-password"))

	_, err := f.svc.Login(ctx, "ada@example.com", "brand-new-password")
	assert.NoError(t, err)
	_, err = f.svc.Refresh(ctx, opened.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Len(t, f.mail.changed, 1)
}

func TestDeleteAccount(t *testing.T) {
	f := newSessionFixture(t)
	opened := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()
	userID := opened.User.ID

	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, userID, "", true), ErrInvalidCredentials)
	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, userID, "wrong-password", true), ErrInvalidCredentials)
	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, userID, "correct-horse", false), ErrConfirmationRequired)

	require.NoError(t, f.svc.DeleteAccount(ctx, userID, "correct-horse", true))

	user, err := f.users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeleted, user.Status)
	require.NotNil(t, user.DeletedAt)
	assert.Len(t, f.mail.deleted, 1)

	_, err = f.svc.Login(ctx, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Refresh(ctx, opened.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, userID, "correct-horse", true), ErrAccountInactive)
}

func TestVerifyEmail(t *testing.T) {
	f := newSessionFixture(t)
	opened := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	user, err := f.users.GetByID(ctx, opened.User.ID)
	require.NoError(t, err)
	require.NotEmpty(t, user.VerificationToken)

	require.NoError(t, f.svc.VerifyEmail(ctx, user.VerificationToken))

	verified, err := f.users.GetByID(ctx, opened.User.ID)
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)
	assert.Empty(t, verified.VerificationToken)

	// One-shot.
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, user.VerificationToken), ErrInvalidVerificationToken)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, ""), ErrInvalidVerificationToken)
}

func TestSessionLifecycleEndToEnd(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	registered := f.register(t, "kim@example.com", "hunter2hunter2")

	loggedIn, err := f.svc.Login(ctx, "kim@example.com", "hunter2hunter2")
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, loggedIn.RefreshToken)
	require.NoError(t, err)

	// Earlier tokens along the chain are all dead.
	for _, stale := range []string{registered.RefreshToken, loggedIn.RefreshToken} {
		_, err = f.svc.Refresh(ctx, stale)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	}

	require.NoError(t, f.svc.Logout(ctx, refreshed.RefreshToken))
	_, err = f.svc.Refresh(ctx, refreshed.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}
