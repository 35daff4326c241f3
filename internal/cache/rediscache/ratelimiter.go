package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by every watcher pointed at the same Redis,
// so several sessions polling one backend stay under a common budget.
type RateLimiter struct {
	c *redis.Client
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

func NewRateLimiter(opts Options) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
	}
}

// Allow counts one hit against key and reports whether the count is still within limit.
// The window starts with the first hit and is not extended by later ones, so key should
// carry the window number (e.g. the minute).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	n, err := rl.c.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	if n == 1 {
		// TTL ставим только на первом попадании
		if err := rl.c.Expire(ctx, key, window).Err(); err != nil {
			return false, n, errors.Wrap(err, "redis ratelimit expire")
		}
	}
	return n <= limit, n, nil
}

func (rl *RateLimiter) Ping(ctx context.Context) error {
	if err := rl.c.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
