package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Cache key namespaces, one per protected dependency.
const (
	// CacheKeyWeather is the prefix for weather caches: weather:{lat}:{lon}
	CacheKeyWeather = "weather"
	// CacheKeyPrediction is the prefix for planting predictions: prediction:{crop}:{lat}:{lon}:{soil}:{season}
	CacheKeyPrediction = "prediction"
)

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient defines the interface for cache operations.
// Implementations must be thread-safe and handle serialization/deserialization.
type CacheClient interface {
	// Get retrieves a value from cache and deserializes it into dest.
	// Returns ErrCacheNotFound if key doesn't exist or has expired.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache with the specified TTL.
	// The value is serialized to JSON before storage.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)
}

// NewCacheClient creates the cache backend selected by data.cache.backend.
// Unknown or missing configuration falls back to Redis.
func NewCacheClient(c *conf.Data, rdb *redis.Client, logger log.Logger) CacheClient {
	helper := log.NewHelper(logger)
	if c != nil && c.Cache != nil && c.Cache.Backend == "memory" {
		cache, err := NewMemoryCache(c.Cache.MemorySize)
		if err == nil {
			helper.Infof("using in-memory LRU cache (size=%d)", c.Cache.MemorySize)
			return cache
		}
		helper.Warnf("in-memory cache unavailable, falling back to redis: %v", err)
	}
	return NewRedisCache(rdb)
}

// redisCache is the Redis-based implementation of CacheClient.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis-based cache client.
// If the Redis client is nil, cache operations will gracefully fail.
func NewRedisCache(rdb *redis.Client) CacheClient {
	return &redisCache{
		client: rdb,
	}
}

// Get retrieves a value from cache and deserializes it into dest.
// Returns ErrCacheNotFound if the key doesn't exist (redis.Nil).
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Set stores a value in cache with the specified TTL.
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, errors.New("cache: redis client is nil")
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}

	return count > 0, nil
}

var keyPartEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Parts are escaped so a ':' inside a part can never make two different
// parameter lists produce the same key.
// Examples:
//   - BuildCacheKey(CacheKeyWeather, "-17.83", "31.05") -> "weather:-17.83:31.05"
//   - BuildCacheKey(CacheKeyPrediction, "a:b", "c") -> "prediction:a%3Ab:c"
func BuildCacheKey(prefix string, parts ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, part := range parts {
		b.WriteByte(':')
		b.WriteString(keyPartEscaper.Replace(part))
	}
	return b.String()
}

// FormatCoordinate rounds a coordinate to 2 decimals (about 1.1 km) so that
// floating point jitter from clients does not fragment the key space.
func FormatCoordinate(v float64) string {
	rounded := math.Round(v*100) / 100
	if rounded == 0 {
		rounded = 0 // normalizes -0
	}
	return strconv.FormatFloat(rounded, 'f', 2, 64)
}

// NormalizeKeyPart lowercases free text and collapses whitespace.
func NormalizeKeyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
