package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foundly/apiserver/types"
)

// ListingRepository handles persistence for listings and their image keys.
type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// ListingFilter narrows List results. Zero values mean "no filter".
type ListingFilter struct {
	Type     types.ListingType
	Category string
	Query    string
	OwnerID  int
	// IncludeHidden admits RESOLVED and REMOVED listings; used by owners
	// and moderation.
	IncludeHidden bool
}

const listingColumns = `id, owner_id, type, title, description, category, status,
		latitude, longitude, reward_cents, created_at, updated_at`

func scanListing(row rowScanner) (types.Listing, error) {
	var listing types.Listing
	err := row.Scan(
		&listing.ID,
		&listing.OwnerID,
		&listing.Type,
		&listing.Title,
		&listing.Description,
		&listing.Category,
		&listing.Status,
		&listing.Latitude,
		&listing.Longitude,
		&listing.RewardCents,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Listing{}, ErrNotFound
		}
		return types.Listing{}, err
	}
	return listing, nil
}

func (r *ListingRepository) GetByID(ctx context.Context, id int) (types.Listing, error) {
	const query = `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE id = $1`
	listing, err := scanListing(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Listing{}, err
	}
	keys, err := r.imageKeys(ctx, id)
	if err != nil {
		return types.Listing{}, err
	}
	listing.ImageKeys = keys
	return listing, nil
}

func (r *ListingRepository) Create(ctx context.Context, listing types.Listing) (types.Listing, error) {
	now := time.Now()
	listing.CreatedAt = now
	listing.UpdatedAt = now

	const query = `
		INSERT INTO listings (owner_id, type, title, description, category, status,
			latitude, longitude, reward_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		listing.OwnerID,
		listing.Type,
		listing.Title,
		listing.Description,
		listing.Category,
		listing.Status,
		listing.Latitude,
		listing.Longitude,
		listing.RewardCents,
		listing.CreatedAt,
		listing.UpdatedAt,
	).Scan(&listing.ID); err != nil {
		return types.Listing{}, err
	}
	return listing, nil
}

func (r *ListingRepository) Update(ctx context.Context, listing types.Listing) (types.Listing, error) {
	listing.UpdatedAt = time.Now()

	const query = `
		UPDATE listings
		SET type = $1,
			title = $2,
			description = $3,
			category = $4,
			status = $5,
			latitude = $6,
			longitude = $7,
			reward_cents = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		listing.Type,
		listing.Title,
		listing.Description,
		listing.Category,
		listing.Status,
		listing.Latitude,
		listing.Longitude,
		listing.RewardCents,
		listing.UpdatedAt,
		listing.ID,
	)
	if err != nil {
		return types.Listing{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Listing{}, err
	}
	if affected == 0 {
		return types.Listing{}, ErrNotFound
	}
	return listing, nil
}

func (r *ListingRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM listings WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns listings matching the filter, newest first.
func (r *ListingRepository) List(ctx context.Context, filter ListingFilter, offset, limit int) ([]types.Listing, int, error) {
	where, args := buildListingWhere(filter)

	countQuery := `SELECT COUNT(*) FROM listings` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT `+listingColumns+`
		FROM listings%s
		ORDER BY created_at DESC, id DESC
		OFFSET $%d LIMIT $%d`, where, len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	listings := make([]types.Listing, 0, limit)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

// SearchRadius returns open listings within radiusKM of the point, nearest
// first, using the haversine great-circle distance.
func (r *ListingRepository) SearchRadius(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]types.Listing, error) {
	const query = `
		SELECT ` + listingColumns + `,
			6371 * 2 * ASIN(SQRT(
				POWER(SIN(RADIANS(latitude - $1) / 2), 2) +
				COS(RADIANS($1)) * COS(RADIANS(latitude)) *
				POWER(SIN(RADIANS(longitude - $2) / 2), 2)
			)) AS distance_km
		FROM listings
		WHERE status = 'OPEN'
		AND 6371 * 2 * ASIN(SQRT(
			POWER(SIN(RADIANS(latitude - $1) / 2), 2) +
			COS(RADIANS($1)) * COS(RADIANS(latitude)) *
			POWER(SIN(RADIANS(longitude - $2) / 2), 2)
		)) <= $3
		ORDER BY distance_km ASC
		LIMIT $4`
	rows, err := r.db.QueryContext(ctx, query, lat, lng, radiusKM, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := make([]types.Listing, 0, limit)
	for rows.Next() {
		var listing types.Listing
		err := rows.Scan(
			&listing.ID,
			&listing.OwnerID,
			&listing.Type,
			&listing.Title,
			&listing.Description,
			&listing.Category,
			&listing.Status,
			&listing.Latitude,
			&listing.Longitude,
			&listing.RewardCents,
			&listing.CreatedAt,
			&listing.UpdatedAt,
			&listing.DistanceKM,
		)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

func (r *ListingRepository) AddImage(ctx context.Context, listingID int, objectKey string) error {
	const query = `INSERT INTO listing_images (listing_id, object_key) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, query, listingID, objectKey)
	return err
}

func (r *ListingRepository) RemoveImage(ctx context.Context, listingID int, objectKey string) error {
	const query = `DELETE FROM listing_images WHERE listing_id = $1 AND object_key = $2`
	result, err := r.db.ExecContext(ctx, query, listingID, objectKey)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ListingRepository) imageKeys(ctx context.Context, listingID int) ([]string, error) {
	const query = `SELECT object_key FROM listing_images WHERE listing_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func buildListingWhere(filter ListingFilter) (string, []any) {
	clauses := []string{}
	args := []any{}

	if !filter.IncludeHidden {
		clauses = append(clauses, `status = 'OPEN'`)
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.OwnerID > 0 {
		args = append(args, filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
