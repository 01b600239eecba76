package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/muudzo/moometrics2/internal/model"
)

// BreakerConfig configures one CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	TimeWindow       time.Duration
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) { b.now = now }
}

// WithTransitionHook registers a callback invoked after every state change,
// outside the breaker lock.
func WithTransitionHook(hook func(model.BreakerTransition)) BreakerOption {
	return func(b *CircuitBreaker) { b.onTransition = hook }
}

// CircuitBreaker is a sliding-window breaker guarding one dependency.
//
// CLOSED counts failures inside TimeWindow and opens at FailureThreshold.
// OPEN rejects calls until RecoveryTimeout has passed, then lets exactly one
// trial call through (HALF_OPEN). The trial outcome closes or reopens it.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu            sync.Mutex
	state         model.BreakerState
	failures      []time.Time
	openedAt      time.Time
	trialInFlight bool

	now          func() time.Time
	onTransition func(model.BreakerTransition)
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		state: model.BreakerClosed,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Protect runs op unless the breaker rejects it with ErrBreakerOpen.
// op's error is returned unchanged after the outcome has been recorded.
// A panicking op is recorded as a failure and the panic is re-raised.
func (b *CircuitBreaker) Protect(ctx context.Context, op func(ctx context.Context) error) error {
	trial, err := b.allow()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			b.record(trial, fmt.Errorf("%w: %v", errOperationPanicked, r))
			panic(r)
		}
	}()
	opErr := op(ctx)
	b.record(trial, opErr)
	return opErr
}

var errOperationPanicked = errors.New("operation panicked")

// isFault reports whether err counts against the dependency.
func isFault(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDependencyNotConfigured) && !errors.Is(err, context.Canceled)
}

func (b *CircuitBreaker) allow() (trial bool, err error) {
	b.mu.Lock()
	var tr *model.BreakerTransition
	now := b.now()

	switch b.state {
	case model.BreakerOpen:
		if now.Sub(b.openedAt) > b.cfg.RecoveryTimeout {
			tr = b.setState(model.BreakerHalfOpen, now)
			b.trialInFlight = true
			trial = true
		} else {
			err = ErrBreakerOpen
		}
	case model.BreakerHalfOpen:
		if b.trialInFlight {
			err = ErrBreakerOpen
		} else {
			b.trialInFlight = true
			trial = true
		}
	}
	b.mu.Unlock()

	b.emit(tr)
	return trial, err
}

func (b *CircuitBreaker) record(trial bool, opErr error) {
	b.mu.Lock()
	var tr *model.BreakerTransition
	now := b.now()

	if trial {
		b.trialInFlight = false
	}

	switch {
	case opErr == nil:
		if trial && b.state == model.BreakerHalfOpen {
			b.failures = b.failures[:0]
			tr = b.setState(model.BreakerClosed, now)
		}
	case !isFault(opErr):
		// 配置缺失或调用方取消，不计入失败；HALF_OPEN 保持，等待下一次试探
	default:
		b.failures = append(b.failures, now)
		b.prune(now)
		switch {
		case trial && b.state == model.BreakerHalfOpen:
			b.openedAt = now
			tr = b.setState(model.BreakerOpen, now)
		case b.state == model.BreakerClosed && len(b.failures) >= b.cfg.FailureThreshold:
			b.openedAt = now
			tr = b.setState(model.BreakerOpen, now)
		}
	}
	b.mu.Unlock()

	b.emit(tr)
}

// prune drops failures older than the time window. Caller holds mu.
func (b *CircuitBreaker) prune(now time.Time) {
	kept := b.failures[:0]
	for _, t := range b.failures {
		if now.Sub(t) < b.cfg.TimeWindow {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

// setState changes state and returns the transition to emit. Caller holds mu.
func (b *CircuitBreaker) setState(to model.BreakerState, now time.Time) *model.BreakerTransition {
	from := b.state
	b.state = to
	return &model.BreakerTransition{
		Name:     b.name,
		From:     from,
		To:       to,
		At:       now,
		Failures: len(b.failures),
	}
}

func (b *CircuitBreaker) emit(tr *model.BreakerTransition) {
	if tr != nil && b.onTransition != nil {
		b.onTransition(*tr)
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() model.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a point-in-time view of the breaker.
func (b *CircuitBreaker) Snapshot() model.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.prune(now)

	snap := model.BreakerSnapshot{
		Name:             b.name,
		State:            b.state,
		FailuresInWindow: len(b.failures),
		FailureThreshold: b.cfg.FailureThreshold,
		RecoveryTimeout:  b.cfg.RecoveryTimeout.Seconds(),
		TimeWindow:       b.cfg.TimeWindow.Seconds(),
		TrialInFlight:    b.trialInFlight,
	}
	if b.state != model.BreakerClosed {
		openedAt := b.openedAt
		snap.OpenedAt = &openedAt
	}
	return snap
}
