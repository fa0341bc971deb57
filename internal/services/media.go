package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/foundly/apiserver/internal/storage"
	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/types"
	"github.com/google/uuid"
)

const maxImageBytes = 10 << 20

var (
	// ErrInvalidImage is returned for uploads that are not images.
	ErrInvalidImage = errors.New("only image uploads are accepted")
	// ErrImageTooLarge is returned when an upload exceeds the size cap.
	ErrImageTooLarge = errors.New("image exceeds the size limit")
)

// MediaService stores and serves listing images.
type MediaService struct {
	listings ListingRepository
	objects  *storage.Storage
}

func NewMediaService(listings ListingRepository, objects *storage.Storage) *MediaService {
	return &MediaService{listings: listings, objects: objects}
}

// Upload places an image in object storage and attaches it to the listing.
// Only the listing owner or an admin may upload.
func (s *MediaService) Upload(ctx context.Context, actor types.User, listingID int, filename, contentType string, r io.Reader, size int64) (string, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return "", err
	}
	if !canModify(actor, listing) {
		return "", ErrForbidden
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrInvalidImage
	}
	if size <= 0 || size > maxImageBytes {
		return "", ErrImageTooLarge
	}

	key := fmt.Sprintf("listings/%d/%s%s", listingID, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	if err := s.objects.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	if err := s.listings.AddImage(ctx, listingID, key); err != nil {
		_ = s.objects.Delete(ctx, key)
		return "", err
	}
	return key, nil
}

// Open streams an image that belongs to the listing.
func (s *MediaService) Open(ctx context.Context, listingID int, key string) (io.ReadCloser, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(listing.ImageKeys, key) {
		return nil, store.ErrNotFound
	}
	return s.objects.Get(ctx, key)
}

// Remove detaches an image from the listing and deletes the stored object.
func (s *MediaService) Remove(ctx context.Context, actor types.User, listingID int, key string) error {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	if !canModify(actor, listing) {
		return ErrForbidden
	}
	if err := s.listings.RemoveImage(ctx, listingID, key); err != nil {
		return err
	}
	return s.objects.Delete(ctx, key)
}
