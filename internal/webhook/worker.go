package webhook

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper calls RetryFailedEvents every interval until ctx is canceled.
// Deployments driven by an external scheduler do not start it.
func RunSweeper(ctx context.Context, s *Sweeper, maxAttempts int, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("sweeper started", zap.Duration("interval", interval), zap.Int("max_attempts", maxAttempts))

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopping", zap.Error(ctx.Err()))
			return

		case <-ticker.C:
			if _, err := s.RetryFailedEvents(ctx, maxAttempts); err != nil && ctx.Err() == nil {
				logger.Error("retry sweep failed", zap.Error(err))
			}
		}
	}
}
