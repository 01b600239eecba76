package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkglog "github.com/muudzo/moometrics2/pkg/log"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Source tells where a dependency response came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Fallback reasons, shown to users inside fallback payloads.
const (
	ReasonBreakerOpen   = "Circuit Breaker OPEN"
	ReasonNotConfigured = "No API Key"
)

// ResilientCaller composes the cache, a circuit breaker, the real call and a fallback
// for one dependency. Fetch never fails: every path ends in a fully formed T.
type ResilientCaller[T any] struct {
	dependency string
	cache      *CacheGateway
	breaker    *CircuitBreaker
	ttl        time.Duration
	timeout    time.Duration
	metrics    *metrics.Metrics
	log        *pkglog.LogHelper
}

// NewResilientCaller creates a ResilientCaller.
// timeout bounds each real call and is independent of the breaker recovery timeout.
func NewResilientCaller[T any](
	dependency string,
	cache *CacheGateway,
	breaker *CircuitBreaker,
	ttl, timeout time.Duration,
	m *metrics.Metrics,
	logger log.Logger,
) *ResilientCaller[T] {
	return &ResilientCaller[T]{
		dependency: dependency,
		cache:      cache,
		breaker:    breaker,
		ttl:        ttl,
		timeout:    timeout,
		metrics:    m,
		log:        pkglog.NewLogHelper(logger),
	}
}

// Fetch returns the cached value for key, or the real call's result, or fallback(reason).
//
// Only live results and fallbacks caused by ErrDependencyNotConfigured are cached;
// a fallback served because the dependency is failing would otherwise outlive the outage.
func (c *ResilientCaller[T]) Fetch(
	ctx context.Context,
	key string,
	realCall func(ctx context.Context) (T, error),
	fallback func(reason string) T,
) (T, Source) {
	var cached T
	if c.cache.Get(ctx, key, &cached) {
		c.metrics.RecordResponse(c.dependency, string(SourceCache))
		return cached, SourceCache
	}

	var result T
	start := time.Now()
	err := c.breaker.Protect(ctx, func(ctx context.Context) error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		v, err := realCall(callCtx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})

	switch {
	case err == nil:
		c.metrics.ObserveCall(c.dependency, "ok", time.Since(start))
		c.metrics.RecordResponse(c.dependency, string(SourceLive))
		c.cache.Set(ctx, key, &result, c.ttl)
		return result, SourceLive

	case errors.Is(err, ErrBreakerOpen):
		c.metrics.RecordBreakerRejection(c.dependency)
		c.metrics.RecordResponse(c.dependency, string(SourceFallback))
		c.log.Degraded("circuit breaker open, serving fallback", "dependency", c.dependency, "key", key)
		return fallback(ReasonBreakerOpen), SourceFallback

	case errors.Is(err, ErrDependencyNotConfigured):
		c.metrics.RecordResponse(c.dependency, string(SourceFallback))
		c.log.Dependency("dependency not configured, serving fallback", "dependency", c.dependency)
		fb := fallback(ReasonNotConfigured)
		c.cache.Set(ctx, key, &fb, c.ttl)
		return fb, SourceFallback

	default:
		c.metrics.ObserveCall(c.dependency, "error", time.Since(start))
		c.metrics.RecordResponse(c.dependency, string(SourceFallback))
		c.log.Degraded("dependency call failed, serving fallback",
			"dependency", c.dependency, "key", key, "error", err)
		return fallback(failureReason(err)), SourceFallback
	}
}

func (c *ResilientCaller[T]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// failureReason describes a failure without leaking upstream details into responses.
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "API Error: timeout"
	}
	var callErr *DependencyCallError
	if errors.As(err, &callErr) && callErr.StatusCode > 0 {
		return fmt.Sprintf("API Error: HTTP %d", callErr.StatusCode)
	}
	return "API Error"
}
