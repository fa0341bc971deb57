package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/foundly/apiserver/internal/storage"
	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memObjectStorage is an in-memory storage.ObjectStorage for tests.
type memObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjectStorage() *memObjectStorage {
	return &memObjectStorage{objects: map[string][]byte{}}
}

func (s *memObjectStorage) EnsureBucket(context.Context) error { return nil }

func (s *memObjectStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memObjectStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memObjectStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memObjectStorage) Bucket() string { return "test-bucket" }

type mediaFixture struct {
	svc      *MediaService
	repo     *memListingRepo
	objects  *memObjectStorage
	owner    types.User
	stranger types.User
	listing  types.Listing
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()
	repo := newMemListingRepo()
	objects := newMemObjectStorage()
	owner := types.User{ID: 7, Role: types.RoleUser}

	listing, err := repo.Create(context.Background(), types.Listing{
		OwnerID: owner.ID,
		Type:    types.ListingLost,
		Title:   "Black leather wallet",
		Status:  types.ListingOpen,
	})
	require.NoError(t, err)

	return &mediaFixture{
		svc:      NewMediaService(repo, storage.NewStorage(objects)),
		repo:     repo,
		objects:  objects,
		owner:    owner,
		stranger: types.User{ID: 8, Role: types.RoleUser},
		listing:  listing,
	}
}

func TestMediaUploadAndOpen(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()
	payload := "fake image bytes"

	key, err := f.svc.Upload(ctx, f.owner, f.listing.ID, "wallet.JPG", "image/jpeg", strings.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "listings/1/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	listing, err := f.repo.GetByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.Contains(t, listing.ImageKeys, key)

	object, err := f.svc.Open(ctx, f.listing.ID, key)
	require.NoError(t, err)
	defer object.Close()
	data, err := io.ReadAll(object)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestMediaUploadRejections(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()
	payload := strings.NewReader("x")

	_, err := f.svc.Upload(ctx, f.stranger, f.listing.ID, "a.jpg", "image/jpeg", payload, 1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Upload(ctx, f.owner, f.listing.ID, "a.pdf", "application/pdf", payload, 1)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = f.svc.Upload(ctx, f.owner, f.listing.ID, "a.jpg", "image/jpeg", payload, maxImageBytes+1)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = f.svc.Upload(ctx, f.owner, 999, "a.jpg", "image/jpeg", payload, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMediaOpenRejectsForeignKey(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	// An object that exists in storage but is not attached to the listing
	// must stay unreachable through the listing.
	require.NoError(t, f.objects.Put(ctx, "listings/2/secret.jpg", strings.NewReader("x"), 1, "image/jpeg"))

	_, err := f.svc.Open(ctx, f.listing.ID, "listings/2/secret.jpg")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMediaRemove(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()
	payload := "fake image bytes"

	key, err := f.svc.Upload(ctx, f.owner, f.listing.ID, "wallet.jpg", "image/jpeg", strings.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Remove(ctx, f.stranger, f.listing.ID, key), ErrForbidden)

	require.NoError(t, f.svc.Remove(ctx, f.owner, f.listing.ID, key))

	listing, err := f.repo.GetByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.NotContains(t, listing.ImageKeys, key)

	_, err = f.svc.Open(ctx, f.listing.ID, key)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
