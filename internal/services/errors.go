package services

import "errors"

var (
	// ErrEmailTaken is returned when registering with an email that already
	// belongs to a non-deleted account.
	ErrEmailTaken = errors.New("email already used")
	// ErrInvalidCredentials covers both unknown-email and wrong-password
	// logins so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBlocked is returned when a blocked user attempts to log in.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrAccountInactive is returned when an operation requires an active
	// account.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidRefreshToken covers absent, revoked, and expired refresh
	// tokens alike.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	// ErrWeakPassword is returned when a password fails the length policy.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrInvalidResetToken covers absent and expired password reset tokens.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	// ErrInvalidVerificationToken is returned when no user holds the
	// presented email verification token.
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	// ErrPasswordUnchanged is returned when the new password equals the
	// current one.
	ErrPasswordUnchanged = errors.New("new password must differ from current password")
	// ErrWrongPassword is returned when the presented current password does
	// not match the stored hash.
	ErrWrongPassword = errors.New("current password does not match")
	// ErrConfirmationRequired is returned when account deletion is requested
	// without the explicit confirmation flag.
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
	// ErrForbidden is returned when the actor is not allowed to touch the
	// resource.
	ErrForbidden = errors.New("forbidden")
)
