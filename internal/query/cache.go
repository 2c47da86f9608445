package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
)

const cacheKeyPrefix = "discover:query:"

// NewRedisClient parses a redis:// URL and attaches the tracing hook.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CachedQuerier serves repeated identical requests from Redis. Redis failures
// are logged and the request falls through to the delegate.
type CachedQuerier struct {
	next   Querier
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedQuerier(next Querier, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedQuerier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedQuerier{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(req Request) (string, error) {
	blob, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	sum := sha256.Sum256(blob)
	return cacheKeyPrefix + hex.EncodeToString(sum[:]), nil
}

func (c *CachedQuerier) Query(ctx context.Context, req Request) (Result, error) {
	if c == nil || c.next == nil {
		return Result{}, errors.New("cached querier not initialized")
	}
	if c.rdb == nil || req.Unsatisfiable() {
		return c.next.Query(ctx, req)
	}

	key, err := cacheKey(req)
	if err != nil {
		return Result{}, err
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Result
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.Warn("query cache decode failed", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("query cache read failed", "error", err)
	}

	res, err := c.next.Query(ctx, req)
	if err != nil {
		return Result{}, err
	}

	blob, err := json.Marshal(res)
	if err == nil {
		err = c.rdb.Set(ctx, key, blob, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("query cache write failed", "error", err)
	}
	return res, nil
}
