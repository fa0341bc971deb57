package services

import (
	"context"
	"errors"
	"strings"

	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/types"
)

// ErrInvalidListing is returned when listing fields fail validation.
var ErrInvalidListing = errors.New("invalid listing")

// ListingRepository defines persistence operations for listings.
type ListingRepository interface {
	GetByID(ctx context.Context, id int) (types.Listing, error)
	Create(ctx context.Context, listing types.Listing) (types.Listing, error)
	Update(ctx context.Context, listing types.Listing) (types.Listing, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, filter store.ListingFilter, offset, limit int) ([]types.Listing, int, error)
	SearchRadius(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]types.Listing, error)
	AddImage(ctx context.Context, listingID int, objectKey string) error
	RemoveImage(ctx context.Context, listingID int, objectKey string) error
}

// ObjectRemover is the slice of object storage the listing service needs to
// clean up after a delete.
type ObjectRemover interface {
	Delete(ctx context.Context, key string) error
}

// ListingService encapsulates listing use-cases.
type ListingService struct {
	repo    ListingRepository
	objects ObjectRemover
}

func NewListingService(repo ListingRepository, objects ObjectRemover) *ListingService {
	return &ListingService{repo: repo, objects: objects}
}

// ListingInput carries the mutable listing fields.
type ListingInput struct {
	Type        types.ListingType
	Title       string
	Description string
	Category    string
	Latitude    float64
	Longitude   float64
	RewardCents int64
}

func (in ListingInput) validate() error {
	if !in.Type.Valid() {
		return ErrInvalidListing
	}
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidListing
	}
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return ErrInvalidListing
	}
	if in.RewardCents < 0 {
		return ErrInvalidListing
	}
	return nil
}

func (s *ListingService) Create(ctx context.Context, ownerID int, input ListingInput) (types.Listing, error) {
	if err := input.validate(); err != nil {
		return types.Listing{}, err
	}
	return s.repo.Create(ctx, types.Listing{
		OwnerID:     ownerID,
		Type:        input.Type,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Category:    strings.TrimSpace(input.Category),
		Status:      types.ListingOpen,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		RewardCents: input.RewardCents,
	})
}

func (s *ListingService) Get(ctx context.Context, id int) (types.Listing, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ListingService) List(ctx context.Context, filter store.ListingFilter, offset, limit int) ([]types.Listing, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, filter, offset, limit)
}

// Search finds open listings within radiusKM of the point, nearest first.
func (s *ListingService) Search(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]types.Listing, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 || radiusKM <= 0 {
		return nil, ErrInvalidListing
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.repo.SearchRadius(ctx, lat, lng, radiusKM, limit)
}

func (s *ListingService) Update(ctx context.Context, actor types.User, id int, input ListingInput) (types.Listing, error) {
	if err := input.validate(); err != nil {
		return types.Listing{}, err
	}

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Listing{}, err
	}
	if !canModify(actor, listing) {
		return types.Listing{}, ErrForbidden
	}

	listing.Type = input.Type
	listing.Title = strings.TrimSpace(input.Title)
	listing.Description = strings.TrimSpace(input.Description)
	listing.Category = strings.TrimSpace(input.Category)
	listing.Latitude = input.Latitude
	listing.Longitude = input.Longitude
	listing.RewardCents = input.RewardCents
	return s.repo.Update(ctx, listing)
}

// Resolve marks a listing as returned to its owner.
func (s *ListingService) Resolve(ctx context.Context, actor types.User, id int) (types.Listing, error) {
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Listing{}, err
	}
	if !canModify(actor, listing) {
		return types.Listing{}, ErrForbidden
	}
	listing.Status = types.ListingResolved
	return s.repo.Update(ctx, listing)
}

// Delete removes the listing and best-effort cleans up its stored images.
func (s *ListingService) Delete(ctx context.Context, actor types.User, id int) error {
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, listing) {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.objects != nil {
		for _, key := range listing.ImageKeys {
			_ = s.objects.Delete(ctx, key)
		}
	}
	return nil
}

func canModify(actor types.User, listing types.Listing) bool {
	return actor.Role == types.RoleAdmin || actor.ID == listing.OwnerID
}
