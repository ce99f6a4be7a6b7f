// Package cache provides the plate index used by fuzzy plate scans, either
// read straight from the repository or cached in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stwalsh4118/roadwarden/internal/logger"
)

const platesKey = "roadwarden:plates"

// PlateSource lists every registered plate number.
type PlateSource interface {
	ListPlates(ctx context.Context) ([]string, error)
}

// Observer is notified of cache hits and misses.
type Observer interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

// NewRedisClient connects to Redis. Returns nil, nil if url is empty
// (Redis not configured).
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// DirectIndex reads plates from the source on every call.
type DirectIndex struct {
	source PlateSource
}

// NewDirectIndex creates an uncached index over source.
func NewDirectIndex(source PlateSource) *DirectIndex {
	return &DirectIndex{source: source}
}

func (d *DirectIndex) AllPlates(ctx context.Context) ([]string, error) {
	return d.source.ListPlates(ctx)
}

func (d *DirectIndex) Invalidate(context.Context) {}

// redisClient is the subset of *redis.Client used by RedisIndex.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisIndex caches the full plate list in Redis for ttl. The scan over
// the list stays linear; only the database read is saved. Redis failures
// fall back to the source.
type RedisIndex struct {
	client   redisClient
	source   PlateSource
	log      *logger.Logger
	observer Observer
	ttl      time.Duration
}

// NewRedisIndex creates a Redis-backed index. observer may be nil.
func NewRedisIndex(client *redis.Client, source PlateSource, ttl time.Duration, log *logger.Logger, observer Observer) *RedisIndex {
	return newRedisIndex(client, source, ttl, log, observer)
}

func newRedisIndex(client redisClient, source PlateSource, ttl time.Duration, log *logger.Logger, observer Observer) *RedisIndex {
	return &RedisIndex{client: client, source: source, ttl: ttl, log: log, observer: observer}
}

func (r *RedisIndex) AllPlates(ctx context.Context) ([]string, error) {
	raw, err := r.client.Get(ctx, platesKey).Bytes()
	switch {
	case err == nil:
		var plates []string
		if jsonErr := json.Unmarshal(raw, &plates); jsonErr == nil {
			r.hit()
			return plates, nil
		}
		r.log.Warn("Discarding corrupt plate cache entry", map[string]interface{}{"key": platesKey})
	case !errors.Is(err, redis.Nil):
		r.log.Warn("Plate cache read failed", map[string]interface{}{"error": err.Error()})
	}
	r.miss()

	plates, err := r.source.ListPlates(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(plates)
	if err == nil {
		if err := r.client.Set(ctx, platesKey, payload, r.ttl).Err(); err != nil {
			r.log.Warn("Plate cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return plates, nil
}

// Invalidate drops the cached list so the next read reloads it.
func (r *RedisIndex) Invalidate(ctx context.Context) {
	if err := r.client.Del(ctx, platesKey).Err(); err != nil {
		r.log.Warn("Plate cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}

func (r *RedisIndex) hit() {
	if r.observer != nil {
		r.observer.CacheHit("plates")
	}
}

func (r *RedisIndex) miss() {
	if r.observer != nil {
		r.observer.CacheMiss("plates")
	}
}
