package biz

import (
	"sort"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/model"
	pkglog "github.com/muudzo/moometrics2/pkg/log"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Dependency names, used as breaker names, cache namespaces and metric labels.
const (
	DependencyWeather    = "weather"
	DependencyPrediction = "prediction"
)

// BreakerRegistry holds one breaker per protected dependency for the process lifetime.
type BreakerRegistry struct {
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry builds the weather and prediction breakers from configuration.
func NewBreakerRegistry(w *conf.Weather, p *conf.Prediction, m *metrics.Metrics, logger log.Logger) *BreakerRegistry {
	r := &BreakerRegistry{breakers: make(map[string]*CircuitBreaker, 2)}
	r.add(DependencyWeather, breakerConfig(w.Breaker), m, logger)
	r.add(DependencyPrediction, breakerConfig(p.Breaker), m, logger)
	return r
}

func breakerConfig(c *conf.Breaker) BreakerConfig {
	if c == nil {
		return BreakerConfig{}
	}
	return BreakerConfig{
		FailureThreshold: c.FailureThreshold,
		RecoveryTimeout:  c.RecoveryTimeout,
		TimeWindow:       c.TimeWindow,
	}
}

func (r *BreakerRegistry) add(name string, cfg BreakerConfig, m *metrics.Metrics, logger log.Logger, opts ...BreakerOption) {
	helper := pkglog.NewLogHelper(logger)
	hook := func(tr model.BreakerTransition) {
		opened := tr.To == model.BreakerOpen
		helper.Breaker(opened, "circuit breaker "+string(tr.From)+" -> "+string(tr.To),
			"dependency", tr.Name,
			"from", string(tr.From),
			"to", string(tr.To),
			"failures_in_window", tr.Failures,
		)
		m.RecordBreakerTransition(tr.Name, string(tr.From), string(tr.To))
		m.SetBreakerState(tr.Name, breakerStateValue(tr.To))
	}

	opts = append([]BreakerOption{WithTransitionHook(hook)}, opts...)
	r.breakers[name] = NewCircuitBreaker(name, cfg, opts...)
	m.SetBreakerState(name, metrics.BreakerStateClosed)
}

func breakerStateValue(s model.BreakerState) int {
	switch s {
	case model.BreakerOpen:
		return metrics.BreakerStateOpen
	case model.BreakerHalfOpen:
		return metrics.BreakerStateHalfOpen
	default:
		return metrics.BreakerStateClosed
	}
}

// Get returns the breaker of a dependency.
func (r *BreakerRegistry) Get(name string) (*CircuitBreaker, bool) {
	b, ok := r.breakers[name]
	return b, ok
}

// MustGet returns the breaker of a dependency and panics if it is not registered.
func (r *BreakerRegistry) MustGet(name string) *CircuitBreaker {
	b, ok := r.breakers[name]
	if !ok {
		panic("biz: no circuit breaker registered for " + name)
	}
	return b
}

// Snapshots returns every breaker snapshot, ordered by name.
func (r *BreakerRegistry) Snapshots() []model.BreakerSnapshot {
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)

	snaps := make([]model.BreakerSnapshot, 0, len(names))
	for _, name := range names {
		snaps = append(snaps, r.breakers[name].Snapshot())
	}
	return snaps
}
