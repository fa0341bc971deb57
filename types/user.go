package types

import "time"

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// Status is a user account's lifecycle state.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
	StatusDeleted Status = "DELETED"
)

// User represents an account in the system.
// It contains identity, role, status, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address, stored lowercased. It is unique
	// across all non-deleted accounts.
	Email string `json:"email" db:"email"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// Status is the account lifecycle state. DELETED accounts are soft
	// deleted and purged after the retention window.
	Status Status `json:"status" db:"status"`

	// BlockedUntil, when set on a BLOCKED account, is the instant the block
	// lapses on its own.
	BlockedUntil *time.Time `json:"blocked_until,omitempty" db:"blocked_until"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// EmailVerified records whether the user has confirmed their address.
	EmailVerified bool `json:"email_verified" db:"email_verified"`

	// VerificationToken is the one-shot email verification token. Cleared
	// on first successful use.
	VerificationToken string `json:"-" db:"verification_token"`

	// ResetToken is the one-shot password reset token, valid until
	// ResetTokenExpiresAt. Cleared on use or superseded by a newer request.
	ResetToken string `json:"-" db:"reset_token"`

	// ResetTokenExpiresAt bounds the reset token's validity.
	ResetTokenExpiresAt *time.Time `json:"-" db:"reset_token_expires_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LastLoginAt records the most recent successful login, if any.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// DeletedAt records when a DELETED account was soft deleted.
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// Blocked reports whether the account is blocked at the given instant,
// accounting for blocks that lapse on their own.
func (u User) Blocked(now time.Time) bool {
	if u.Status != StatusBlocked {
		return false
	}
	if u.BlockedUntil != nil && now.After(*u.BlockedUntil) {
		return false
	}
	return true
}
