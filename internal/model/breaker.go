// Package model holds domain types shared by the biz, data and service layers.
package model

import "time"

// BreakerState is the circuit breaker state of one protected dependency.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSnapshot is a point-in-time view of a breaker, used by ops endpoints and cron logs.
type BreakerSnapshot struct {
	Name             string       `json:"name"`
	State            BreakerState `json:"state"`
	FailuresInWindow int          `json:"failures_in_window"`
	FailureThreshold int          `json:"failure_threshold"`
	RecoveryTimeout  float64      `json:"recovery_timeout_seconds"`
	TimeWindow       float64      `json:"time_window_seconds"`
	OpenedAt         *time.Time   `json:"opened_at,omitempty"`
	TrialInFlight    bool         `json:"trial_in_flight"`
}

// BreakerTransition describes a state change, emitted to logs and metrics.
type BreakerTransition struct {
	Name     string
	From     BreakerState
	To       BreakerState
	At       time.Time
	Failures int
}
