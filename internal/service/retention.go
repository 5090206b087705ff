package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetentionSweeper deletes telemetry older than a fixed age.
type RetentionSweeper struct {
	repo   TelemetryStore
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRetentionSweeper creates a sweeper
func NewRetentionSweeper(repo TelemetryStore, maxAge time.Duration, logger *zap.Logger) *RetentionSweeper {
	return &RetentionSweeper{repo: repo, maxAge: maxAge, logger: logger, now: time.Now}
}

// Sweep runs one deletion pass
func (r *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	removed, err := r.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.logger.Info("expired telemetry deleted", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done
func (r *RetentionSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}
