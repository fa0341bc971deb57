package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/foundly/apiserver/internal/mailer"
	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/internal/token"
	"github.com/foundly/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// resetTokenTTL bounds how long a password reset link stays usable.
	resetTokenTTL = 30 * time.Minute
	// opaque one-shot tokens (reset, verification) are shorter than refresh
	// tokens since they ride inside email deep links.
	oneShotTokenBytes = 32
)

// SessionService orchestrates the session lifecycle: registration, login,
// refresh, logout, and the password flows. All domain failures surface as
// the sentinel errors in errors.go; raw store or hashing errors never reach
// the transport layer with extra meaning attached.
type SessionService struct {
	users      UserRepository
	refresh    *RefreshService
	signer     *token.Signer
	mail       mailer.Dispatcher
	bcryptCost int

	// dummyHash absorbs a bcrypt comparison on the unknown-email login path
	// so its timing matches the wrong-password path.
	dummyHash []byte
}

func NewSessionService(users UserRepository, refresh *RefreshService, signer *token.Signer, mail mailer.Dispatcher) *SessionService {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("foundly.dummy.credential"), bcrypt.DefaultCost)
	return &SessionService{
		users:      users,
		refresh:    refresh,
		signer:     signer,
		mail:       mail,
		bcryptCost: bcrypt.DefaultCost,
		dummyHash:  dummy,
	}
}

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthResult is the outcome of any operation that establishes a session.
type AuthResult struct {
	User         types.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	// ExpiresIn is the access token lifetime hint in seconds.
	ExpiresIn int `json:"expires_in"`
}

// Register creates a new account and opens its first session. The
// verification email is dispatched asynchronously.
func (s *SessionService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, ErrInvalidCredentials
	}
	if len(input.Password) < minPasswordLen {
		return AuthResult{}, ErrWeakPassword
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, err
	}
	if exists {
		return AuthResult{}, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return AuthResult{}, err
	}

	verificationToken, err := newOpaqueToken(oneShotTokenBytes)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Email:             email,
		FirstName:         strings.TrimSpace(input.FirstName),
		LastName:          strings.TrimSpace(input.LastName),
		Role:              types.RoleUser,
		Status:            types.StatusActive,
		PasswordHash:      string(hashed),
		VerificationToken: verificationToken,
	})
	if err != nil {
		// A concurrent registration can slip past ExistsByEmail; the unique
		// index reports it here.
		if errors.Is(err, store.ErrDuplicate) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, err
	}

	_ = s.mail.SendVerification(ctx, user.Email, verificationToken)

	return s.openSession(ctx, user)
}

// Login verifies credentials and opens a new session, implicitly revoking
// any prior refresh token for the user.
func (s *SessionService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash comparison so this path costs the same as a
			// wrong password.
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	now := time.Now()
	if user.Blocked(now) {
		return AuthResult{}, ErrAccountBlocked
	}

	user.LastLoginAt = &now
	if user, err = s.users.Update(ctx, user); err != nil {
		return AuthResult{}, err
	}

	return s.openSession(ctx, user)
}

// Refresh exchanges a live refresh token for a new token pair. The old
// refresh token is rotated out as part of the exchange.
func (s *SessionService) Refresh(ctx context.Context, rawRefreshToken string) (AuthResult, error) {
	userID, err := s.refresh.Validate(ctx, strings.TrimSpace(rawRefreshToken))
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, err
	}
	if user.Status == types.StatusDeleted {
		return AuthResult{}, ErrInvalidRefreshToken
	}
	if user.Blocked(time.Now()) {
		return AuthResult{}, ErrAccountBlocked
	}

	return s.openSession(ctx, user)
}

// Logout revokes the presented refresh token. Dead tokens fail with
// ErrInvalidRefreshToken, which callers surface as a soft failure.
func (s *SessionService) Logout(ctx context.Context, rawRefreshToken string) error {
	return s.refresh.Revoke(ctx, strings.TrimSpace(rawRefreshToken))
}

// ForgotPassword issues a reset token and emails it. It reports success
// whether or not the email maps to an account.
func (s *SessionService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	resetToken, err := newOpaqueToken(oneShotTokenBytes)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(resetTokenTTL)
	user.ResetToken = resetToken
	user.ResetTokenExpiresAt = &expiresAt
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}

	_ = s.mail.SendPasswordReset(ctx, user.Email, resetToken)
	return nil
}

// ResetPassword consumes a reset token, stores a new password hash, and
// invalidates every outstanding session for the user.
func (s *SessionService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		return ErrInvalidResetToken
	}

	user, err := s.users.GetByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if user.ResetTokenExpiresAt == nil || time.Now().After(*user.ResetTokenExpiresAt) {
		return ErrInvalidResetToken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashed)
	user.ResetToken = ""
	user.ResetTokenExpiresAt = nil
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}

	if err := s.refresh.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	_ = s.mail.SendPasswordChangedNotice(ctx, user.Email, user.FirstName)
	return nil
}

// ChangePassword rotates an authenticated user's password and invalidates
// every outstanding session.
func (s *SessionService) ChangePassword(ctx context.Context, userID int, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(newPassword)) == nil {
		return ErrPasswordUnchanged
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashed)
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}

	if err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	_ = s.mail.SendPasswordChangedNotice(ctx, user.Email, user.FirstName)
	return nil
}

// DeleteAccount soft-deletes the user after verifying their password and an
// explicit confirmation. Sessions are revoked first; the record itself is
// purged after the retention window.
func (s *SessionService) DeleteAccount(ctx context.Context, userID int, password string, confirmDeletion bool) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if password == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	if !confirmDeletion {
		return ErrConfirmationRequired
	}
	if user.Status != types.StatusActive {
		return ErrAccountInactive
	}

	if err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	now := time.Now()
	user.Status = types.StatusDeleted
	user.DeletedAt = &now
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}

	_ = s.mail.SendAccountDeletedNotice(ctx, user.Email, user.FirstName)
	return nil
}

// VerifyEmail consumes a one-shot verification token.
func (s *SessionService) VerifyEmail(ctx context.Context, verificationToken string) error {
	verificationToken = strings.TrimSpace(verificationToken)
	if verificationToken == "" {
		return ErrInvalidVerificationToken
	}

	user, err := s.users.GetByVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidVerificationToken
		}
		return err
	}

	user.EmailVerified = true
	user.VerificationToken = ""
	_, err = s.users.Update(ctx, user)
	return err
}

// openSession issues the access/refresh pair for an authenticated user.
func (s *SessionService) openSession(ctx context.Context, user types.User) (AuthResult, error) {
	accessToken, _, err := s.signer.Issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	refreshToken, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.signer.TTL().Seconds()),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
