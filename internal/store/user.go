package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/foundly/apiserver/types"
	"github.com/lib/pq"
)

const userColumns = `id, email, first_name, last_name, role, status, blocked_until,
		password_hash, email_verified, verification_token, reset_token,
		reset_token_expires_at, created_at, updated_at, last_login_at, deleted_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user              types.User
		verificationToken sql.NullString
		resetToken        sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.Status,
		&user.BlockedUntil,
		&user.PasswordHash,
		&user.EmailVerified,
		&verificationToken,
		&resetToken,
		&user.ResetTokenExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
		&user.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.VerificationToken = verificationToken.String
	user.ResetToken = resetToken.String
	return user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail matches case-insensitively. Soft-deleted accounts are invisible.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1) AND status <> 'DELETED'`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND status <> 'DELETED'
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) GetByResetToken(ctx context.Context, token string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_token = $1 AND status <> 'DELETED'`
	return scanUser(r.db.QueryRowContext(ctx, query, token))
}

func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE verification_token = $1 AND status <> 'DELETED'`
	return scanUser(r.db.QueryRowContext(ctx, query, token))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, first_name, last_name, role, status, password_hash,
			email_verified, verification_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Status,
		user.PasswordHash,
		user.EmailVerified,
		nullString(user.VerificationToken),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET email = $1,
			first_name = $2,
			last_name = $3,
			role = $4,
			status = $5,
			blocked_until = $6,
			password_hash = $7,
			email_verified = $8,
			verification_token = $9,
			reset_token = $10,
			reset_token_expires_at = $11,
			updated_at = $12,
			last_login_at = $13,
			deleted_at = $14
		WHERE id = $15`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Status,
		user.BlockedUntil,
		user.PasswordHash,
		user.EmailVerified,
		nullString(user.VerificationToken),
		nullString(user.ResetToken),
		user.ResetTokenExpiresAt,
		user.UpdatedAt,
		user.LastLoginAt,
		user.DeletedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// List returns non-deleted users ordered by creation, newest first.
func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	const countQuery = `SELECT COUNT(*) FROM users WHERE status <> 'DELETED'`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE status <> 'DELETED'
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// PurgeDeletedBefore hard-deletes accounts soft-deleted before the cutoff.
// Refresh tokens and listings cascade with the row.
func (r *UserRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM users WHERE status = 'DELETED' AND deleted_at < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClearExpiredResetTokens drops reset tokens whose expiry has passed.
func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET reset_token = NULL, reset_token_expires_at = NULL
		WHERE reset_token IS NOT NULL AND reset_token_expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
