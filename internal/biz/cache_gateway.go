package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muudzo/moometrics2/internal/data"
	pkglog "github.com/muudzo/moometrics2/pkg/log"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Versioned is implemented by cacheable values. Bumping the version
// turns every entry written with an older shape into a miss.
type Versioned interface {
	CacheSchemaVersion() int
}

// cacheEnvelope is the stored form of a cached value.
type cacheEnvelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// CacheGateway is a best-effort read-through cache.
// Storage failures never reach callers: reads degrade to misses, writes are dropped.
type CacheGateway struct {
	client  data.CacheClient
	metrics *metrics.Metrics
	log     *pkglog.LogHelper
}

// NewCacheGateway creates a CacheGateway over the configured cache backend.
func NewCacheGateway(d *data.Data, m *metrics.Metrics, logger log.Logger) *CacheGateway {
	return &CacheGateway{
		client:  d.GetCache(),
		metrics: m,
		log:     pkglog.NewLogHelper(logger),
	}
}

func schemaVersion(v interface{}) int {
	if ver, ok := v.(Versioned); ok {
		return ver.CacheSchemaVersion()
	}
	return 0
}

func keyNamespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// Get decodes the entry at key into dest and reports a hit.
// Missing, expired, undecodable and other-version entries are all misses.
func (g *CacheGateway) Get(ctx context.Context, key string, dest interface{}) bool {
	ns := keyNamespace(key)
	if g.client == nil {
		g.metrics.RecordCache(ns, "error")
		return false
	}

	var env cacheEnvelope
	if err := g.client.Get(ctx, key, &env); err != nil {
		if errors.Is(err, data.ErrCacheNotFound) {
			g.metrics.RecordCache(ns, "miss")
			g.log.Cache("cache miss", "key", key)
			return false
		}
		g.metrics.RecordCache(ns, "error")
		g.log.Degraded("cache read failed, treating as miss",
			"key", key, "error", fmt.Errorf("%w: %v", ErrCacheUnavailable, err))
		return false
	}

	if want := schemaVersion(dest); env.V != want {
		g.metrics.RecordCache(ns, "miss")
		g.log.Cache("cache entry has stale schema", "key", key, "stored_version", env.V, "want_version", want)
		g.Delete(ctx, key)
		return false
	}

	if err := json.Unmarshal(env.Data, dest); err != nil {
		g.metrics.RecordCache(ns, "error")
		g.log.Degraded("cache entry undecodable, treating as miss", "key", key, "error", err)
		return false
	}

	g.metrics.RecordCache(ns, "hit")
	g.log.Cache("cache hit", "key", key)
	return true
}

// Set stores value under key for ttl. Failures are logged and swallowed.
func (g *CacheGateway) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if g.client == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		g.log.Degraded("cache value not serializable, skipping write", "key", key, "error", err)
		return
	}

	env := cacheEnvelope{V: schemaVersion(value), Data: raw}
	if err := g.client.Set(ctx, key, env, ttl); err != nil {
		g.log.Degraded("cache write failed", "key", key, "error", fmt.Errorf("%w: %v", ErrCacheUnavailable, err))
	}
}

// Delete removes key. Failures are logged and swallowed.
func (g *CacheGateway) Delete(ctx context.Context, key string) {
	if g.client == nil {
		return
	}
	if err := g.client.Delete(ctx, key); err != nil {
		g.log.Degraded("cache delete failed", "key", key, "error", fmt.Errorf("%w: %v", ErrCacheUnavailable, err))
	}
}
