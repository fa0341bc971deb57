// Package token issues and verifies signed access tokens. Tokens are
// short-lived HS256 JWTs carrying the user's identity and role; there is no
// server-side revocation list, so rotating the signing key is the only way
// to invalidate them before expiry.
package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/foundly/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenTTL is the fixed lifetime of every access token.
const AccessTokenTTL = 30 * time.Minute

// ErrInvalidToken is returned for every verification failure. Callers must
// not learn whether a token was malformed, forged, or merely expired.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the verified contents of an access token.
type Claims struct {
	jwt.RegisteredClaims
	Email string     `json:"email"`
	Role  types.Role `json:"role"`
}

// UserID returns the token subject as a user ID. It must only be called on
// claims returned by Verify.
func (c Claims) UserID() (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(c.Subject))
	if err != nil || id < 1 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Signer signs and verifies access tokens with a process-wide symmetric key
// loaded once at startup.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a Signer for the given secret.
func NewSigner(secret string) *Signer {
	return &Signer{
		secret: []byte(secret),
		ttl:    AccessTokenTTL,
	}
}

// Issue creates a signed access token for the user and returns it along
// with its expiry.
func (s *Signer) Issue(user types.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: user.Email,
		Role:  user.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the token's signature and expiry and returns its claims.
// Any structural, signature, or expiry violation yields ErrInvalidToken.
func (s *Signer) Verify(tokenString string) (Claims, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// TTL returns the access token lifetime.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}
