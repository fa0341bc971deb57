package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/types"
)

// RefreshTokenTTL is the fixed lifetime of a refresh token.
const RefreshTokenTTL = 7 * 24 * time.Hour

// refreshTokenBytes sizes the raw opaque token before encoding.
const refreshTokenBytes = 64

// RefreshTokenRepository defines persistence operations for refresh tokens.
type RefreshTokenRepository interface {
	Replace(ctx context.Context, userID int, tokenHash string, expiresAt time.Time) error
	GetByHash(ctx context.Context, tokenHash string) (types.RefreshToken, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID int) error
	DeleteDeadBefore(ctx context.Context, now time.Time) (int64, error)
}

// RefreshService issues and validates opaque refresh tokens. Only SHA-256
// digests of raw tokens are persisted; the raw value exists server-side only
// for the duration of the request that created it.
type RefreshService struct {
	tokens RefreshTokenRepository
	ttl    time.Duration
}

func NewRefreshService(tokens RefreshTokenRepository) *RefreshService {
	return &RefreshService{tokens: tokens, ttl: RefreshTokenTTL}
}

// Issue generates a new raw token for the user and replaces any existing
// tokens, keeping at most one active token per user.
func (s *RefreshService) Issue(ctx context.Context, userID int) (string, error) {
	raw, err := newOpaqueToken(refreshTokenBytes)
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(s.ttl)
	if err := s.tokens.Replace(ctx, userID, hashToken(raw), expiresAt); err != nil {
		return "", err
	}
	return raw, nil
}

// Validate resolves a raw token to its owning user. Absent, revoked, and
// expired tokens all fail with ErrInvalidRefreshToken.
func (s *RefreshService) Validate(ctx context.Context, raw string) (int, error) {
	if raw == "" {
		return 0, ErrInvalidRefreshToken
	}
	record, err := s.tokens.GetByHash(ctx, hashToken(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrInvalidRefreshToken
		}
		return 0, err
	}
	if !record.Active(time.Now()) {
		return 0, ErrInvalidRefreshToken
	}
	return record.UserID, nil
}

// Revoke marks the token revoked. A token that is absent, already revoked,
// or expired fails with ErrInvalidRefreshToken; revoking a live token twice
// yields the same outcome, never a server error.
func (s *RefreshService) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return ErrInvalidRefreshToken
	}
	hash := hashToken(raw)
	record, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	if !record.Active(time.Now()) {
		return ErrInvalidRefreshToken
	}
	return s.tokens.RevokeByHash(ctx, hash)
}

// RevokeAllForUser invalidates every outstanding session for the user.
func (s *RefreshService) RevokeAllForUser(ctx context.Context, userID int) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// newOpaqueToken returns n random bytes in unpadded URL-safe base64.
func newOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
