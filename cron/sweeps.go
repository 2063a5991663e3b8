package cron

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweepLoop runs both sweeps in-process on a ticker. Used when no task queue is configured.
func RunSweepLoop(ctx context.Context, jobs BookingJobs, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep loop shutdown signal received")
			return
		case <-ticker.C:
			runSweeps(ctx, jobs, logger)
		}
	}
}

func runSweeps(ctx context.Context, jobs BookingJobs, logger *zap.Logger) {
	if n, err := jobs.CompleteDue(ctx, sweepBatch); err != nil {
		logger.Warn("completion sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("completion sweep", zap.Int("completed", n))
	}
	if n, err := jobs.ExpireStaleHolds(ctx, sweepBatch); err != nil {
		logger.Warn("hold sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("hold sweep", zap.Int("expired", n))
	}
}
