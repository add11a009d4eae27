package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares fixed windows between instances. The first INCR of a window
// sets the expiry; the key's TTL is the window's reset time.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedis(rdb redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *Redis) Check(ctx context.Context, key string, cfg Config) (Result, error) {
	k := r.prefix + ":" + key

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := incr.Val()
	remaining := ttl.Val()

	// new window, or a key left without expiry by an earlier failed PEXPIRE
	if count == 1 || remaining < 0 {
		if err := r.rdb.PExpire(ctx, k, cfg.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
		}
		remaining = cfg.Window
	}

	return result(cfg, int(count), r.now().Add(remaining)), nil
}
