package ratelimit

import (
	"context"
	"math"
	"time"
)

// Config is a fixed window: at most MaxRequests per key per Window.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

type Result struct {
	Success   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// RetryAfterSeconds is the wait until the window resets, rounded up and
// never below one second.
func (r Result) RetryAfterSeconds(now time.Time) int {
	secs := int(math.Ceil(r.ResetTime.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter interface {
	Check(ctx context.Context, key string, cfg Config) (Result, error)
}

func result(cfg Config, count int, reset time.Time) Result {
	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Success:   count <= cfg.MaxRequests,
		Limit:     cfg.MaxRequests,
		Remaining: remaining,
		ResetTime: reset,
	}
}
