package biz

import (
	"math"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"
)

// RetryPolicy computes retry delays: min(MaxDelay, BaseDelay * 2^retries * (1 + Jitter*u)), u in [0,1).
// With Jitter < 1 the delay never decreases from one retry to the next.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Jitter     float64
}

// NewRetryPolicy reads the retry policy from task configuration.
func NewRetryPolicy(c *conf.Task) RetryPolicy {
	p := RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   600 * time.Second,
		MaxRetries: 5,
		Jitter:     0.5,
	}
	if c == nil || c.Retry == nil {
		return p
	}
	if c.Retry.BaseDelay > 0 {
		p.BaseDelay = c.Retry.BaseDelay
	}
	if c.Retry.MaxDelay > 0 {
		p.MaxDelay = c.Retry.MaxDelay
	}
	if c.Retry.MaxRetries >= 0 {
		p.MaxRetries = c.Retry.MaxRetries
	}
	if c.Retry.Jitter >= 0 && c.Retry.Jitter < 1 {
		p.Jitter = c.Retry.Jitter
	}
	return p
}

// Delay returns the wait before retry number retries+1. u is a uniform sample in [0,1).
func (p RetryPolicy) Delay(retries int, u float64) time.Duration {
	if retries < 0 {
		retries = 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(retries)) * (1 + p.Jitter*u)
	if d >= float64(p.MaxDelay) || math.IsInf(d, 0) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
