package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/types"
)

// memUserRepo is an in-memory UserRepository for tests.
type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{nextID: 1, users: map[int]types.User{}}
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) && user.Status != types.StatusDeleted {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByResetToken(_ context.Context, token string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.ResetToken != "" && user.ResetToken == token {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByVerificationToken(_ context.Context, token string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.VerificationToken != "" && user.VerificationToken == token {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) && existing.Status != types.StatusDeleted {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]types.User, 0, len(r.users))
	for id := 1; id < r.nextID; id++ {
		if user, ok := r.users[id]; ok {
			all = append(all, user)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memUserRepo) PurgeDeletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, user := range r.users {
		if user.Status == types.StatusDeleted && user.DeletedAt != nil && user.DeletedAt.Before(cutoff) {
			delete(r.users, id)
			purged++
		}
	}
	return purged, nil
}

func (r *memUserRepo) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared int64
	for id, user := range r.users {
		if user.ResetToken != "" && user.ResetTokenExpiresAt != nil && user.ResetTokenExpiresAt.Before(now) {
			user.ResetToken = ""
			user.ResetTokenExpiresAt = nil
			r.users[id] = user
			cleared++
		}
	}
	return cleared, nil
}

// memTokenRepo is an in-memory RefreshTokenRepository for tests.
type memTokenRepo struct {
	mu     sync.Mutex
	nextID int
	tokens map[int]types.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{nextID: 1, tokens: map[int]types.RefreshToken{}}
}

func (r *memTokenRepo) Replace(_ context.Context, userID int, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, token := range r.tokens {
		if token.UserID == userID {
			delete(r.tokens, id)
		}
	}
	token := types.RefreshToken{
		ID:        r.nextID,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	r.nextID++
	r.tokens[token.ID] = token
	return nil
}

func (r *memTokenRepo) GetByHash(_ context.Context, tokenHash string) (types.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.TokenHash == tokenHash {
			return token, nil
		}
	}
	return types.RefreshToken{}, store.ErrNotFound
}

func (r *memTokenRepo) RevokeByHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, token := range r.tokens {
		if token.TokenHash == tokenHash {
			token.Revoked = true
			r.tokens[id] = token
		}
	}
	return nil
}

func (r *memTokenRepo) RevokeAllForUser(_ context.Context, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, token := range r.tokens {
		if token.UserID == userID {
			token.Revoked = true
			r.tokens[id] = token
		}
	}
	return nil
}

func (r *memTokenRepo) DeleteDeadBefore(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, token := range r.tokens {
		if token.Revoked || token.ExpiresAt.Before(now) {
			delete(r.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memTokenRepo) liveCountForUser(userID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, token := range r.tokens {
		if token.UserID == userID && token.Active(time.Now()) {
			count++
		}
	}
	return count
}

// memListingRepo is an in-memory ListingRepository for tests.
type memListingRepo struct {
	mu       sync.Mutex
	nextID   int
	listings map[int]types.Listing
}

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{nextID: 1, listings: map[int]types.Listing{}}
}

func (r *memListingRepo) GetByID(_ context.Context, id int) (types.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[id]
	if !ok {
		return types.Listing{}, store.ErrNotFound
	}
	return listing, nil
}

func (r *memListingRepo) Create(_ context.Context, listing types.Listing) (types.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing.ID = r.nextID
	r.nextID++
	listing.CreatedAt = time.Now()
	listing.UpdatedAt = listing.CreatedAt
	r.listings[listing.ID] = listing
	return listing, nil
}

func (r *memListingRepo) Update(_ context.Context, listing types.Listing) (types.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listings[listing.ID]; !ok {
		return types.Listing{}, store.ErrNotFound
	}
	listing.UpdatedAt = time.Now()
	r.listings[listing.ID] = listing
	return listing, nil
}

func (r *memListingRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listings[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.listings, id)
	return nil
}

func (r *memListingRepo) List(_ context.Context, filter store.ListingFilter, offset, limit int) ([]types.Listing, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []types.Listing
	for id := 1; id < r.nextID; id++ {
		listing, ok := r.listings[id]
		if !ok {
			continue
		}
		if filter.Type != "" && listing.Type != filter.Type {
			continue
		}
		if filter.Category != "" && listing.Category != filter.Category {
			continue
		}
		if !filter.IncludeHidden && listing.Status != types.ListingOpen {
			continue
		}
		matched = append(matched, listing)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memListingRepo) SearchRadius(_ context.Context, lat, lng, radiusKM float64, limit int) ([]types.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []types.Listing
	for id := 1; id < r.nextID && len(matched) < limit; id++ {
		listing, ok := r.listings[id]
		if !ok || listing.Status != types.ListingOpen {
			continue
		}
		// Flat-earth approximation is close enough for test fixtures placed
		// well inside or outside the radius.
		dLat := (listing.Latitude - lat) * 111.0
		dLng := (listing.Longitude - lng) * 111.0
		if dLat*dLat+dLng*dLng <= radiusKM*radiusKM {
			matched = append(matched, listing)
		}
	}
	return matched, nil
}

func (r *memListingRepo) AddImage(_ context.Context, listingID int, objectKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[listingID]
	if !ok {
		return store.ErrNotFound
	}
	listing.ImageKeys = append(listing.ImageKeys, objectKey)
	r.listings[listingID] = listing
	return nil
}

func (r *memListingRepo) RemoveImage(_ context.Context, listingID int, objectKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[listingID]
	if !ok {
		return store.ErrNotFound
	}
	keys := listing.ImageKeys[:0]
	for _, key := range listing.ImageKeys {
		if key != objectKey {
			keys = append(keys, key)
		}
	}
	listing.ImageKeys = keys
	r.listings[listingID] = listing
	return nil
}

// memRemover records deleted object keys.
type memRemover struct {
	mu      sync.Mutex
	deleted []string
}

func (r *memRemover) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, key)
	return nil
}

// recordingMailer captures dispatched mail jobs for assertions.
type recordingMailer struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
	changed       []string
	deleted       []string
}

func (m *recordingMailer) SendVerification(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, email+":"+token)
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, email+":"+token)
	return nil
}

func (m *recordingMailer) SendPasswordChangedNotice(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed = append(m.changed, email)
	return nil
}

func (m *recordingMailer) SendAccountDeletedNotice(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, email)
	return nil
}
