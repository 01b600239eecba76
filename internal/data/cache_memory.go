package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryCache is a bounded in-process CacheClient.
// Entries expire passively: an expired entry is dropped when it is read.
type memoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryCache creates an LRU-backed cache holding at most size entries.
func NewMemoryCache(size int) (CacheClient, error) {
	return newMemoryCache(size, time.Now)
}

func newMemoryCache(size int, now func() time.Time) (*memoryCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache: memory size must be positive, got %d", size)
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to create lru: %w", err)
	}
	return &memoryCache{entries: entries, now: now}, nil
}

func (c *memoryCache) lookup(key string) (memoryEntry, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	entry, ok := c.lookup(key)
	if !ok {
		return ErrCacheNotFound
	}
	if err := json.Unmarshal(entry.value, dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

// Set stores value for ttl; a non-positive ttl keeps the entry until evicted.
func (c *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}
	entry := memoryEntry{value: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.lookup(key)
	return ok, nil
}
