package services

import (
	"context"
	"time"

	"github.com/foundly/apiserver/internal/mailer"
	"github.com/foundly/apiserver/types"
)

// ModerationService implements the admin-only account and listing actions.
type ModerationService struct {
	users    UserRepository
	refresh  *RefreshService
	listings ListingRepository
	mail     mailer.Dispatcher
}

func NewModerationService(users UserRepository, refresh *RefreshService, listings ListingRepository, mail mailer.Dispatcher) *ModerationService {
	return &ModerationService{
		users:    users,
		refresh:  refresh,
		listings: listings,
		mail:     mail,
	}
}

func (s *ModerationService) ListUsers(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.users.List(ctx, offset, limit)
}

// BlockUser blocks the account, optionally until a given instant, and
// revokes its sessions.
func (s *ModerationService) BlockUser(ctx context.Context, userID int, until *time.Time) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if user.Status == types.StatusDeleted {
		return types.User{}, ErrAccountInactive
	}

	user.Status = types.StatusBlocked
	user.BlockedUntil = until
	user, err = s.users.Update(ctx, user)
	if err != nil {
		return types.User{}, err
	}

	if err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (s *ModerationService) UnblockUser(ctx context.Context, userID int) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if user.Status != types.StatusBlocked {
		return user, nil
	}

	user.Status = types.StatusActive
	user.BlockedUntil = nil
	return s.users.Update(ctx, user)
}

// DeleteUser soft-deletes the account, revokes its sessions, and notifies
// the owner. The record is purged after the retention window.
func (s *ModerationService) DeleteUser(ctx context.Context, userID int) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Status == types.StatusDeleted {
		return ErrAccountInactive
	}

	if err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	now := time.Now()
	user.Status = types.StatusDeleted
	user.DeletedAt = &now
	if _, err := s.users.Update(ctx, user); err != nil {
		return err
	}

	_ = s.mail.SendAccountDeletedNotice(ctx, user.Email, user.FirstName)
	return nil
}

// RemoveListing takes a listing down without deleting it, so the record
// stays available to moderation.
func (s *ModerationService) RemoveListing(ctx context.Context, listingID int) (types.Listing, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return types.Listing{}, err
	}
	listing.Status = types.ListingRemoved
	return s.listings.Update(ctx, listing)
}
