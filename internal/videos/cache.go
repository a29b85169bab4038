package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
)

// DefaultCacheTTL bounds how long a stale entry can survive a missed invalidation.
const DefaultCacheTTL = 5 * time.Minute

// Cache is the key/value primitive used in front of the store.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisCache stores JSON values in Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get decodes the value at key into dest. It reports false on a miss.
func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return true, nil
}

// Set stores value at key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// NopCache never hits. Used when Redis is not configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string, any) (bool, error) { return false, nil }

func (NopCache) Set(context.Context, string, any, time.Duration) error { return nil }

func (NopCache) Delete(context.Context, ...string) error { return nil }

// CacheConfig controls the read-through layer.
type CacheConfig struct {
	TTL    time.Duration
	Prefix string // default "cache:"
}

type cacheKeys struct {
	prefix string
}

func (k cacheKeys) video(id uuid.UUID) string {
	return k.prefix + "video:" + id.String()
}

func (k cacheKeys) lesson(courseID uuid.UUID, lessonID string) string {
	return k.prefix + "video:lesson:" + courseID.String() + ":" + lessonID
}

func (k cacheKeys) course(courseID uuid.UUID) string {
	return k.prefix + "videos:course:" + courseID.String()
}

// readThrough owns every cache access of the service: reads go through
// load-on-miss, writes go through invalidate.
type readThrough struct {
	cache  Cache
	ttl    time.Duration
	keys   cacheKeys
	logger *zap.Logger
}

func newReadThrough(cache Cache, cfg CacheConfig, logger *zap.Logger) *readThrough {
	if cache == nil {
		cache = NopCache{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache:"
	}
	return &readThrough{cache: cache, ttl: cfg.TTL, keys: cacheKeys{prefix: cfg.Prefix}, logger: logger}
}

// cachedLoad returns the cached value at key or calls load and caches what it found.
// Cache failures degrade to a store read; they are never returned.
func cachedLoad[T any](ctx context.Context, rt *readThrough, key string, load func(context.Context) (T, bool, error)) (T, bool, error) {
	var cached T
	hit, err := rt.cache.Get(ctx, key, &cached)
	if err != nil {
		rt.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return cached, true, nil
	}
	val, found, err := load(ctx)
	if err != nil || !found {
		return val, found, err
	}
	rt.put(ctx, key, val)
	return val, true, nil
}

func (rt *readThrough) put(ctx context.Context, key string, val any) {
	if err := rt.cache.Set(ctx, key, val, rt.ttl); err != nil {
		rt.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate deletes keys in the given order, one at a time, so a failure on
// one key still attempts the rest.
func (rt *readThrough) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := rt.cache.Delete(ctx, key); err != nil {
			rt.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// videoKeys lists every entry a mutation of v can make stale: per-video, per-lesson, per-course.
func (rt *readThrough) videoKeys(v *models.Video) []string {
	return []string{rt.keys.video(v.ID), rt.keys.lesson(v.CourseID, v.LessonID), rt.keys.course(v.CourseID)}
}
