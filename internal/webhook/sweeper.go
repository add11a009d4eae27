package webhook

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"psicomapa-webhooks/internal/model"
)

type SweepConfig struct {
	// pending records older than this are retried like failed ones
	StaleAfter time.Duration
	Batch      int
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		StaleAfter: 10 * time.Minute,
		Batch:      100,
	}
}

type Sweeper struct {
	deps Deps
	cfg  SweepConfig
}

func NewSweeper(deps Deps, cfg SweepConfig) *Sweeper {
	def := DefaultSweepConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.Batch <= 0 {
		cfg.Batch = def.Batch
	}
	return &Sweeper{deps: deps.withDefaults(), cfg: cfg}
}

// RetryFailedEvents re-sends undelivered records below maxAttempts, oldest
// first, and returns how many became delivered. Records at the ceiling stay
// failed for good. Overlapping sweeps may send the same record twice.
func (s *Sweeper) RetryFailedEvents(ctx context.Context, maxAttempts int) (int, error) {
	if maxAttempts < 1 {
		return 0, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}
	if s.deps.Deliverer == nil || !s.deps.Deliverer.Enabled() {
		s.deps.Logger.Warn("retry sweep skipped, webhook delivery disabled")
		return 0, nil
	}

	events, err := s.deps.Store.ListRetryable(ctx, RetryQuery{
		MaxAttempts: maxAttempts,
		StaleBefore: s.deps.now().Add(-s.cfg.StaleAfter),
		Limit:       s.cfg.Batch,
	})
	if err != nil {
		return 0, fmt.Errorf("list retryable events: %w", err)
	}

	delivered := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		// the store filters already; this guards the ceiling against a
		// store that does not
		if ev.AttemptCount >= maxAttempts || ev.Status == model.StatusDelivered {
			continue
		}
		if attempt(ctx, s.deps, ev).Status == model.StatusDelivered {
			delivered++
		}
	}

	s.deps.Logger.Info("retry sweep finished",
		zap.Int("selected", len(events)),
		zap.Int("delivered", delivered),
		zap.Int("max_attempts", maxAttempts))
	return delivered, nil
}
