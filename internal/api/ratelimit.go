package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
)

// RedisRateLimiter is a sliding window limiter shared by every API replica.
type RedisRateLimiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, rate int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		rate:   rate,
		window: window,
		prefix: "frameset:ratelimit:",
	}
}

// Allow fails open when Redis cannot be reached.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	allowed, err := rl.allow(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Warn("rate limiter unavailable", "error", err)
		return true
	}
	return allowed
}

func (rl *RedisRateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - int64(rl.window)
	redisKey := rl.prefix + key

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: now})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return countCmd.Val() <= int64(rl.rate), nil
}

// HybridRateLimiter uses Redis when it answers and the in-memory bucket
// otherwise.
type HybridRateLimiter struct {
	redis    *RedisRateLimiter
	inMemory *RateLimiter
}

func NewHybridRateLimiter(redisClient *redis.Client, rate, burst int) *HybridRateLimiter {
	var redisRL *RedisRateLimiter
	if redisClient != nil {
		redisRL = NewRedisRateLimiter(redisClient, burst, time.Second)
	}
	return &HybridRateLimiter{
		redis:    redisRL,
		inMemory: NewRateLimiter(rate, burst),
	}
}

func (hl *HybridRateLimiter) Allow(ctx context.Context, key string) bool {
	if hl.redis != nil {
		allowed, err := hl.redis.allow(ctx, key)
		if err == nil {
			return allowed
		}
		logger.FromContext(ctx).Debug("falling back to in-memory rate limit", "error", err)
	}
	return hl.inMemory.Allow(ctx, key)
}

func (hl *HybridRateLimiter) Stop() {
	hl.inMemory.Stop()
}
