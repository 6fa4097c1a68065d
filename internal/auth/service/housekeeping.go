package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
)

const (
	DefaultHousekeepingInterval = time.Hour
	DefaultTokenPurgeAfter      = 72 * time.Hour
)

// HousekeepingService periodically deletes refresh token records that
// expired more than PurgeAfter ago, so the table does not grow unbounded.
type HousekeepingService struct {
	Store      store.Store
	Logger     *slog.Logger
	Interval   time.Duration
	PurgeAfter time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service. Non-positive
// durations fall back to the defaults.
func NewHousekeepingService(
	store store.Store,
	logger *slog.Logger,
	interval, purgeAfter time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	if purgeAfter <= 0 {
		purgeAfter = DefaultTokenPurgeAfter
	}

	return &HousekeepingService{
		Store:      store,
		Logger:     logger.With("component", "housekeeping"),
		Interval:   interval,
		PurgeAfter: purgeAfter,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started",
		"interval", s.Interval,
		"purge_after", s.PurgeAfter,
	)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes refresh tokens that expired before now - PurgeAfter and
// returns how many were removed.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	cutoff := time.Now().Add(-s.PurgeAfter)
	s.Logger.Info("starting housekeeping cleanup", "cutoff", cutoff)

	n, err := s.Store.RefreshTokens().DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
		return 0
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", n)
	return n
}
