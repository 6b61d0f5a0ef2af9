package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter kept in Redis.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, limit int64, window time.Duration) *RateLimiter {
	if window < time.Second {
		window = time.Minute
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow increments the counter for key and reports whether the caller is
// still within the window's limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) bool {
	if r == nil || r.rdb == nil || r.limit <= 0 {
		return true
	}

	bucket := time.Now().Unix() / int64(r.window.Seconds())
	redisKey := FormatRateKey(key, bucket)

	count, err := r.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		// Redis 挂了？不阻止请求
		return true
	}

	// Set expiration on first increment
	if count == 1 {
		r.rdb.Expire(ctx, redisKey, r.window)
	}

	return count <= r.limit
}

// FormatRateKey formats a window key for a client.
func FormatRateKey(client string, bucket int64) string {
	return fmt.Sprintf("ratelimit:ics:%s:%d", client, bucket)
}
