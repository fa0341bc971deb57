package types

import "time"

// RefreshToken is the persisted record of a long-lived session token. Only
// the SHA-256 digest of the raw token is stored; the raw value goes back to
// the client and is never retained server-side.
type RefreshToken struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}

// Active reports whether the token is usable at the given instant.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
