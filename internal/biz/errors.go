package biz

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheUnavailable wraps a cache storage failure. It never leaves the cache gateway.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrBreakerOpen is returned by CircuitBreaker.Protect when the call is fast-failed.
	ErrBreakerOpen = errors.New("circuit breaker is open")

	// ErrDependencyNotConfigured means the dependency has no credentials.
	// It is a configuration state, not a failure of the dependency.
	ErrDependencyNotConfigured = errors.New("dependency not configured")

	// ErrTaskRevoked is returned to a running task once it has been revoked.
	ErrTaskRevoked = errors.New("task revoked")

	// ErrUnknownTask is returned when submitting a task name that has no handler.
	ErrUnknownTask = errors.New("unknown task")

	// ErrTaskNotFound is returned for an unknown or expired task id.
	ErrTaskNotFound = errors.New("task not found")
)

// DependencyCallError is a failed call to an external dependency:
// network error, timeout, non-2xx status or malformed response.
type DependencyCallError struct {
	Dependency string
	// StatusCode is the HTTP status of the answer, 0 when there was none.
	StatusCode int
	Err        error
}

func (e *DependencyCallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s call failed (http %d): %v", e.Dependency, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s call failed: %v", e.Dependency, e.Err)
}

func (e *DependencyCallError) Unwrap() error {
	return e.Err
}

// TaskExecutionError is a retryable failure of one task attempt.
type TaskExecutionError struct {
	TaskID  string
	Attempt int
	Err     error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s attempt %d failed: %v", e.TaskID, e.Attempt, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// TaskExhaustedError means a task failed after its last allowed retry.
type TaskExhaustedError struct {
	TaskID  string
	Retries int
	Err     error
}

func (e *TaskExhaustedError) Error() string {
	return fmt.Sprintf("task %s exhausted after %d retries: %v", e.TaskID, e.Retries, e.Err)
}

func (e *TaskExhaustedError) Unwrap() error {
	return e.Err
}
