package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	opTimeout      = 2 * time.Second
	patternTimeout = 1500 * time.Millisecond
	deleteBatch    = 25
)

// Redis is the production Cache. All failures are logged and swallowed.
type Redis struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func NewRedis(url string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{rdb: redis.NewClient(opts), logger: logger}, nil
}

func (c *Redis) GetJSON(ctx context.Context, key string, dest any) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Corrupted value: drop it so the next write starts clean.
		c.logger.Warn().Err(err).Str("key", key).Msg("cache value corrupt, deleting")
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

func (c *Redis) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) bool {
	raw, err := json.Marshal(val)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache set failed")
		return false
	}
	return true
}

func (c *Redis) Delete(ctx context.Context, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Debug().Err(err).Strs("keys", keys).Msg("cache delete failed")
		return false
	}
	return true
}

// DeletePattern scans for keys matching the glob and deletes them in batches
// of at most deleteBatch, each batch under its own wall-clock budget.
func (c *Redis) DeletePattern(ctx context.Context, pattern string) int {
	deleted := 0
	batch := make([]string, 0, deleteBatch)

	scanCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	iter := c.rdb.Scan(scanCtx, 0, pattern, int64(deleteBatch)).Iterator()
	for iter.Next(scanCtx) {
		batch = append(batch, iter.Val())
		if len(batch) == deleteBatch {
			deleted += c.deleteBatch(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Debug().Err(err).Str("pattern", pattern).Msg("cache scan failed")
	}
	if len(batch) > 0 {
		deleted += c.deleteBatch(ctx, batch)
	}
	return deleted
}

func (c *Redis) deleteBatch(ctx context.Context, keys []string) int {
	ctx, cancel := context.WithTimeout(ctx, patternTimeout)
	defer cancel()

	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Debug().Err(err).Int("keys", len(keys)).Msg("cache batch delete failed")
		return 0
	}
	return int(n)
}

func (c *Redis) Exists(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (c *Redis) TTL(ctx context.Context, key string) time.Duration {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0
	}
	return ttl
}

func (c *Redis) Close() error { return c.rdb.Close() }
