package services

import (
	"context"
	"log"
	"time"
)

// PurgeService is the retention sweep: it hard-deletes accounts whose soft
// delete has aged past the retention window, drops dead refresh tokens, and
// clears expired password reset tokens.
type PurgeService struct {
	users      UserRepository
	tokens     RefreshTokenRepository
	deletedTTL time.Duration
}

func NewPurgeService(users UserRepository, tokens RefreshTokenRepository, deletedTTL time.Duration) *PurgeService {
	if deletedTTL <= 0 {
		deletedTTL = 365 * 24 * time.Hour
	}
	return &PurgeService{
		users:      users,
		tokens:     tokens,
		deletedTTL: deletedTTL,
	}
}

// PurgeReport summarizes one sweep.
type PurgeReport struct {
	UsersPurged        int64
	TokensPurged       int64
	ResetTokensCleared int64
}

// Run executes one sweep.
func (s *PurgeService) Run(ctx context.Context) (PurgeReport, error) {
	now := time.Now()
	var report PurgeReport
	var err error

	if report.UsersPurged, err = s.users.PurgeDeletedBefore(ctx, now.Add(-s.deletedTTL)); err != nil {
		return report, err
	}
	if report.TokensPurged, err = s.tokens.DeleteDeadBefore(ctx, now); err != nil {
		return report, err
	}
	if report.ResetTokensCleared, err = s.users.ClearExpiredResetTokens(ctx, now); err != nil {
		return report, err
	}
	return report, nil
}

// Start runs the sweep on a ticker until the context is cancelled.
func (s *PurgeService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(ctx); err != nil {
					log.Printf("retention purge failed: %v", err)
				}
			}
		}
	}()
}
