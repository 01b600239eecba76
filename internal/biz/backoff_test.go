package biz

import (
	"testing"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 600 * time.Second, MaxRetries: 5, Jitter: 0.5}

	assert.Equal(t, time.Second, p.Delay(0, 0))
	assert.Equal(t, 1500*time.Millisecond, p.Delay(0, 1))
	assert.Equal(t, 8*time.Second, p.Delay(3, 0))
	assert.Equal(t, 600*time.Second, p.Delay(10, 0))
	assert.Equal(t, 600*time.Second, p.Delay(5000, 0.9), "huge exponents are capped")
	assert.Equal(t, time.Second, p.Delay(-1, 0))
}

func TestRetryPolicy_NonDecreasingAndCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 600 * time.Second, Jitter: 0.5}
	samples := []float64{0, 0.25, 0.5, 0.999}

	prevMax := time.Duration(0)
	for r := 0; r < 16; r++ {
		lo, hi := p.Delay(r, samples[0]), p.Delay(r, samples[0])
		for _, u := range samples {
			d := p.Delay(r, u)
			assert.LessOrEqual(t, d, p.MaxDelay)
			if d < lo {
				lo = d
			}
			if d > hi {
				hi = d
			}
		}
		assert.GreaterOrEqual(t, lo, prevMax, "retry %d may not wait less than retry %d", r, r-1)
		prevMax = hi
	}
}

func TestNewRetryPolicy(t *testing.T) {
	p := NewRetryPolicy(nil)
	assert.Equal(t, RetryPolicy{BaseDelay: time.Second, MaxDelay: 600 * time.Second, MaxRetries: 5, Jitter: 0.5}, p)

	p = NewRetryPolicy(&conf.Task{Retry: &conf.Task_Retry{
		BaseDelay:  2 * time.Second,
		MaxDelay:   time.Minute,
		MaxRetries: 0,
		Jitter:     0,
	}})
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, time.Minute, p.MaxDelay)
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 0.0, p.Jitter)
}
