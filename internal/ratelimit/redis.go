// ABOUTME: Redis-backed fixed-window rate limiter shared across gateway instances
// ABOUTME: Fails open when Redis is unreachable so auth stays available

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "identity-gateway:ratelimit:"

// RedisLimiter counts requests with INCR on a key that expires with the window.
type RedisLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisLimiter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}

	return &RedisLimiter{
		client:  client,
		logger:  logger.With("component", "ratelimit"),
		prefix:  defaultKeyPrefix,
		timeout: 250 * time.Millisecond,
	}, nil
}

// Allow implements Limiter.
func (rl *RedisLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if win <= 0 {
		win = DefaultWindow
	}
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		// NX keeps the first request's expiry so the window does not slide
		pipe.ExpireNX(ctx, redisKey, win)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logger.Error("redis rate limiter error", "op", "incr", "error", err)
		// Fail open, reporting a fresh window so clients never see a bogus reset time
		return Decision{Allowed: true, Limit: limit, WindowEnd: time.Now().Add(win)}
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = win
	}
	count := int(incr.Val())
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		WindowEnd: time.Now().Add(remaining),
	}
}

// Close closes the Redis client.
func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
