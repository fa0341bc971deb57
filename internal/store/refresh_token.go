package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foundly/apiserver/types"
)

// RefreshTokenRepository handles persistence for refresh tokens. Raw tokens
// never reach this layer; callers pass SHA-256 digests.
type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Replace deletes every token owned by the user and inserts the new one in a
// single transaction. Two concurrent logins cannot leave two live tokens
// behind: the later commit deletes the earlier insert.
func (r *RefreshTokenRepository) Replace(ctx context.Context, userID int, tokenHash string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete prior tokens: %w", err)
	}

	const insert = `
		INSERT INTO refresh_tokens (user_id, token_hash, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)`
	if _, err := tx.ExecContext(ctx, insert, userID, tokenHash, time.Now(), expiresAt); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	return tx.Commit()
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (types.RefreshToken, error) {
	const query = `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked
		FROM refresh_tokens
		WHERE token_hash = $1`
	var token types.RefreshToken
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RefreshToken{}, ErrNotFound
		}
		return types.RefreshToken{}, err
	}
	return token, nil
}

// RevokeByHash marks the matching token revoked. Revoking an already-revoked
// or absent token is a no-op.
func (r *RefreshTokenRepository) RevokeByHash(ctx context.Context, tokenHash string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1 AND NOT revoked`
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

// RevokeAllForUser revokes every token the user owns.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// DeleteDeadBefore removes tokens that are revoked or expired as of now.
func (r *RefreshTokenRepository) DeleteDeadBefore(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE revoked OR expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
