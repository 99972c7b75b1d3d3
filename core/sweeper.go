package core

import (
	"context"
	"fmt"
	"time"
)

type ExpirySweeperConfig struct {
	BatchSize  int
	MaxBatches int
}

func DefaultExpirySweeperConfig() ExpirySweeperConfig {
	return ExpirySweeperConfig{
		BatchSize:  100,
		MaxBatches: 10,
	}
}

// ExpirySweeper removes operations whose TTL has elapsed and asks any
// registered purgers to clean their own expired rows. It runs on demand;
// scheduling belongs to the job runner that hosts it.
type ExpirySweeper struct {
	store   OperationStore
	purgers []ExpiredPurger
	config  ExpirySweeperConfig
	now     func() time.Time
}

func NewExpirySweeper(
	store OperationStore,
	purgers []ExpiredPurger,
	config ExpirySweeperConfig,
) (*ExpirySweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("core: operation store is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultExpirySweeperConfig().BatchSize
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = DefaultExpirySweeperConfig().MaxBatches
	}
	kept := make([]ExpiredPurger, 0, len(purgers))
	for _, purger := range purgers {
		if purger != nil {
			kept = append(kept, purger)
		}
	}
	return &ExpirySweeper{
		store:   store,
		purgers: kept,
		config:  config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// SweepOnce deletes expired operations in batches until a batch comes back
// short or the batch cap is reached, then runs the purgers. Purger errors
// are collected without aborting the sweep.
func (s *ExpirySweeper) SweepOnce(ctx context.Context, batchSize int) (SweepStats, error) {
	if s == nil || s.store == nil {
		return SweepStats{}, fmt.Errorf("core: expiry sweeper is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = s.config.BatchSize
	}

	stats := SweepStats{}
	var sweepErr error
	cutoff := s.now()
	for batch := 0; batch < s.config.MaxBatches; batch++ {
		deleted, err := s.store.DeleteExpired(ctx, cutoff, limit)
		if err != nil {
			return stats, joinErrors(sweepErr, err)
		}
		stats.OperationsDeleted += deleted
		stats.Batches++
		if deleted < limit {
			break
		}
	}

	for _, purger := range s.purgers {
		purged, err := purger.PurgeExpired(ctx, cutoff, limit)
		if err != nil {
			sweepErr = joinErrors(sweepErr, err)
			continue
		}
		stats.EntriesPurged += purged
	}

	return stats, sweepErr
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

var _ OperationSweeper = (*ExpirySweeper)(nil)

