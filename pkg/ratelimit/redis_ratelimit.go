package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter enforces token-bucket limits shared across instances. It
// reuses the process-wide Redis client instead of opening its own.
type RedisRateLimiter struct {
	client       *redis.Client
	keyPrefix    string
	defaultLimit int
	defaultTTL   time.Duration
}

func NewRedisRateLimiter(client *redis.Client, keyPrefix string, defaultLimit int, defaultTTL time.Duration) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	if defaultLimit <= 0 {
		defaultLimit = 60
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}

	return &RedisRateLimiter{
		client:       client,
		keyPrefix:    keyPrefix,
		defaultLimit: defaultLimit,
		defaultTTL:   defaultTTL,
	}
}

// Allow checks and consumes one token for the key. The whole refill/consume
// cycle runs inside a Lua script so concurrent instances stay consistent.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if window <= 0 {
		window = r.defaultTTL
	}

	redisKey := r.keyPrefix + key
	now := time.Now().Unix()

	script := redis.NewScript(`
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local now = tonumber(ARGV[3])

		local tokens_key = key .. ":tokens"
		local timestamp_key = key .. ":timestamp"

		local tokens = tonumber(redis.call('GET', tokens_key))
		local last_update = tonumber(redis.call('GET', timestamp_key))

		if tokens == nil then
			tokens = limit
			last_update = now
		end

		local elapsed = now - last_update
		local refill_rate = limit / window
		local new_tokens = math.min(limit, tokens + (elapsed * refill_rate))

		local allowed = 0
		if new_tokens >= 1 then
			new_tokens = new_tokens - 1
			allowed = 1
		end

		redis.call('SET', tokens_key, new_tokens, 'EX', window * 2)
		redis.call('SET', timestamp_key, now, 'EX', window * 2)

		return allowed
	`)

	result, err := script.Run(ctx, r.client, []string{redisKey}, limit, int(window.Seconds()), now).Int()
	if err != nil {
		return false, fmt.Errorf("redis script execution failed: %w", err)
	}

	return result == 1, nil
}

// Reset clears the rate limit state for a key.
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key

	pipe := r.client.Pipeline()
	pipe.Del(ctx, redisKey+":tokens")
	pipe.Del(ctx, redisKey+":timestamp")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

func (r *RedisRateLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
