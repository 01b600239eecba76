package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/pkg/openai"
	"github.com/muudzo/moometrics2/pkg/openweather"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by breakers and executors under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// setupData returns a Data backed by miniredis.
func setupData(t *testing.T) (*data.Data, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	d, cleanup, err := data.NewData(&conf.Data{}, log.DefaultLogger, rdb, data.NewRedisCache(rdb))
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return d, mr
}

func testBreakerRegistry(clock *fakeClock) *BreakerRegistry {
	r := &BreakerRegistry{breakers: map[string]*CircuitBreaker{}}
	cfg := BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, TimeWindow: 60 * time.Second}
	r.add(DependencyWeather, cfg, nil, log.DefaultLogger, WithClock(clock.Now))
	r.add(DependencyPrediction, cfg, nil, log.DefaultLogger, WithClock(clock.Now))
	return r
}

type fakeWeatherProvider struct {
	mu    sync.Mutex
	obs   *openweather.Observation
	err   error
	calls int
}

func (f *fakeWeatherProvider) Current(ctx context.Context, lat, lon float64) (*openweather.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	obs := *f.obs
	return &obs, nil
}

func (f *fakeWeatherProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePredictionProvider struct {
	mu     sync.Mutex
	advice *openai.PlantingAdvice
	err    error
	calls  int
	last   openai.PlantingQuery
}

func (f *fakePredictionProvider) PlantingAdvice(ctx context.Context, q openai.PlantingQuery) (*openai.PlantingAdvice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = q
	if f.err != nil {
		return nil, f.err
	}
	advice := *f.advice
	return &advice, nil
}

func (f *fakePredictionProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDeadLetterStore struct {
	mu      sync.Mutex
	records []*data.DeadLetterTask
	err     error
}

func (f *fakeDeadLetterStore) Record(ctx context.Context, rec *data.DeadLetterTask) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, r := range f.records {
		if r.TaskID == rec.TaskID {
			return false, nil
		}
	}
	f.records = append(f.records, rec)
	return true, nil
}

func (f *fakeDeadLetterStore) List(ctx context.Context, limit int) ([]*data.DeadLetterTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*data.DeadLetterTask, 0, len(f.records))
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func (f *fakeDeadLetterStore) Records() []*data.DeadLetterTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*data.DeadLetterTask(nil), f.records...)
}
