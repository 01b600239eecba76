package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/model"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 503")

func newTestBreaker(clock *fakeClock, hook func(model.BreakerTransition)) *CircuitBreaker {
	opts := []BreakerOption{WithClock(clock.Now)}
	if hook != nil {
		opts = append(opts, WithTransitionHook(hook))
	}
	return NewCircuitBreaker("weather", BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		TimeWindow:       60 * time.Second,
	}, opts...)
}

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	// five failures one second apart
	for i := 0; i < 5; i++ {
		assert.Equal(t, model.BreakerClosed, b.State(), "failure %d", i)
		err := b.Protect(ctx, fail)
		assert.ErrorIs(t, err, errUpstream, "op error is returned unchanged")
		if i < 4 {
			clock.Advance(time.Second)
		}
	}
	assert.Equal(t, model.BreakerOpen, b.State())

	// t=30s: rejected without invoking the operation
	clock.Advance(26 * time.Second)
	called := false
	err := b.Protect(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)

	// exactly recovery_timeout after opening: still rejected
	clock.Advance(34 * time.Second)
	assert.ErrorIs(t, b.Protect(ctx, succeed), ErrBreakerOpen)

	// just past recovery_timeout: one trial goes through and closes the breaker
	clock.Advance(time.Second)
	require.NoError(t, b.Protect(ctx, succeed))
	assert.Equal(t, model.BreakerClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailuresInWindow, "window is cleared on close")
}

func TestCircuitBreaker_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Protect(ctx, fail)
		clock.Advance(20 * time.Second)
	}
	// failures at 0, 20, 40, 60, 80; the first two have left the window at t=80
	_ = b.Protect(ctx, fail)
	assert.Equal(t, model.BreakerClosed, b.State())
	assert.Equal(t, 3, b.Snapshot().FailuresInWindow)
}

func TestCircuitBreaker_SuccessInClosedKeepsWindow(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Protect(ctx, fail)
	}
	require.NoError(t, b.Protect(ctx, succeed))
	_ = b.Protect(ctx, fail)
	assert.Equal(t, model.BreakerOpen, b.State())
}

func TestCircuitBreaker_TrialFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Protect(ctx, fail)
	}
	openedAt := *b.Snapshot().OpenedAt

	clock.Advance(61 * time.Second)
	assert.ErrorIs(t, b.Protect(ctx, fail), errUpstream)

	snap := b.Snapshot()
	assert.Equal(t, model.BreakerOpen, snap.State)
	assert.True(t, snap.OpenedAt.After(openedAt), "opened_at is reset by the failed trial")

	// a new recovery period starts from the failed trial
	clock.Advance(30 * time.Second)
	assert.ErrorIs(t, b.Protect(ctx, succeed), ErrBreakerOpen)
}

func TestCircuitBreaker_SingleTrialInHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Protect(ctx, fail)
	}
	clock.Advance(61 * time.Second)

	release := make(chan struct{})
	trialStarted := make(chan struct{})
	var trialErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		trialErr = b.Protect(ctx, func(context.Context) error {
			close(trialStarted)
			<-release
			return nil
		})
	}()
	<-trialStarted

	var calls atomic.Int32
	var rejected atomic.Int32
	var inner sync.WaitGroup
	for i := 0; i < 10; i++ {
		inner.Add(1)
		go func() {
			defer inner.Done()
			err := b.Protect(ctx, func(context.Context) error { calls.Add(1); return nil })
			if errors.Is(err, ErrBreakerOpen) {
				rejected.Add(1)
			}
		}()
	}
	inner.Wait()

	assert.Equal(t, int32(0), calls.Load(), "no call passes while the trial is in flight")
	assert.Equal(t, int32(10), rejected.Load())
	assert.True(t, b.Snapshot().TrialInFlight)

	close(release)
	wg.Wait()
	require.NoError(t, trialErr)
	assert.Equal(t, model.BreakerClosed, b.State())
}

func TestCircuitBreaker_NonFaults(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	notConfigured := fmt.Errorf("%w: OPENWEATHER_API_KEY", ErrDependencyNotConfigured)
	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, b.Protect(ctx, func(context.Context) error { return notConfigured }), ErrDependencyNotConfigured)
		_ = b.Protect(ctx, func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, model.BreakerClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailuresInWindow)

	// timeouts are failures
	for i := 0; i < 5; i++ {
		_ = b.Protect(ctx, func(context.Context) error {
			return &DependencyCallError{Dependency: "weather", Err: context.DeadlineExceeded}
		})
	}
	assert.Equal(t, model.BreakerOpen, b.State())
}

func TestCircuitBreaker_PanickingTrialReleasesSlot(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Protect(ctx, fail)
	}
	clock.Advance(61 * time.Second)

	assert.PanicsWithValue(t, "boom", func() {
		_ = b.Protect(ctx, func(context.Context) error { panic("boom") })
	})

	snap := b.Snapshot()
	assert.Equal(t, model.BreakerOpen, snap.State, "a panicking trial counts as a failure")
	assert.False(t, snap.TrialInFlight)

	clock.Advance(61 * time.Second)
	called := false
	require.NoError(t, b.Protect(ctx, func(context.Context) error { called = true; return nil }))
	assert.True(t, called)
	assert.Equal(t, model.BreakerClosed, b.State())
}

func TestCircuitBreaker_NonFaultTrialKeepsHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Protect(ctx, fail)
	}
	clock.Advance(61 * time.Second)

	_ = b.Protect(ctx, func(context.Context) error { return context.Canceled })
	snap := b.Snapshot()
	assert.Equal(t, model.BreakerHalfOpen, snap.State)
	assert.False(t, snap.TrialInFlight)

	require.NoError(t, b.Protect(ctx, succeed))
	assert.Equal(t, model.BreakerClosed, b.State())
}

func TestCircuitBreaker_TransitionHook(t *testing.T) {
	clock := newFakeClock()
	var transitions []model.BreakerTransition
	b := newTestBreaker(clock, func(tr model.BreakerTransition) {
		transitions = append(transitions, tr)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Protect(ctx, fail)
	}
	clock.Advance(61 * time.Second)
	_ = b.Protect(ctx, succeed)

	require.Len(t, transitions, 3)
	assert.Equal(t, model.BreakerClosed, transitions[0].From)
	assert.Equal(t, model.BreakerOpen, transitions[0].To)
	assert.Equal(t, 5, transitions[0].Failures)
	assert.Equal(t, model.BreakerHalfOpen, transitions[1].To)
	assert.Equal(t, model.BreakerClosed, transitions[2].To)
	assert.Equal(t, "weather", transitions[2].Name)
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock, nil)

	snap := b.Snapshot()
	assert.Equal(t, model.BreakerSnapshot{
		Name:             "weather",
		State:            model.BreakerClosed,
		FailureThreshold: 5,
		RecoveryTimeout:  60,
		TimeWindow:       60,
	}, snap)
}

func TestBreakerRegistry(t *testing.T) {
	m := metrics.NewMetrics()
	r := NewBreakerRegistry(
		&conf.Weather{Breaker: &conf.Breaker{FailureThreshold: 1, RecoveryTimeout: time.Minute, TimeWindow: time.Minute}},
		&conf.Prediction{Breaker: &conf.Breaker{FailureThreshold: 5, RecoveryTimeout: 2 * time.Minute, TimeWindow: time.Minute}},
		m, log.DefaultLogger,
	)

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "prediction", snaps[0].Name)
	assert.Equal(t, 120.0, snaps[0].RecoveryTimeout)
	assert.Equal(t, "weather", snaps[1].Name)

	_, ok := r.Get("soil")
	assert.False(t, ok)
	assert.Panics(t, func() { r.MustGet("soil") })

	_ = r.MustGet(DependencyWeather).Protect(context.Background(), fail)
	assert.Equal(t, model.BreakerOpen, r.MustGet(DependencyWeather).State())
	assert.Equal(t, float64(metrics.BreakerStateOpen), testutil.ToFloat64(m.BreakerState.WithLabelValues("weather")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("weather", "CLOSED", "OPEN")))
}
