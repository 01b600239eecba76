package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskState is the lifecycle state of a background task.
type TaskState string

const (
	TaskPending  TaskState = "PENDING"
	TaskRunning  TaskState = "RUNNING"
	TaskProgress TaskState = "PROGRESS"
	TaskRetry    TaskState = "RETRY"
	TaskSuccess  TaskState = "SUCCESS"
	TaskFailed   TaskState = "FAILED"
	TaskRevoked  TaskState = "REVOKED"
)

// Terminal reports whether no further execution will happen for the task.
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailed || s == TaskRevoked
}

// TaskPayload is the opaque input of a task: positional args and keyword args.
type TaskPayload struct {
	Args   []interface{}          `json:"args"`
	Kwargs map[string]interface{} `json:"kwargs"`
}

// BindKwargs decodes the keyword arguments into dst.
func (p TaskPayload) BindKwargs(dst interface{}) error {
	raw, err := json.Marshal(p.Kwargs)
	if err != nil {
		return fmt.Errorf("encode kwargs: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode kwargs: %w", err)
	}
	return nil
}

// TaskProgressInfo is the {current, total} progress reported by a running task.
type TaskProgressInfo struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// TaskRecord is the in-flight state of a task, kept in Redis until its result expires.
type TaskRecord struct {
	ID         string            `json:"task_id"`
	Name       string            `json:"name"`
	UserID     string            `json:"user_id,omitempty"`
	Payload    TaskPayload       `json:"payload"`
	State      TaskState         `json:"state"`
	Attempts   int               `json:"attempts"`
	Retries    int               `json:"retries"`
	MaxRetries int               `json:"max_retries"`
	Progress   *TaskProgressInfo `json:"progress,omitempty"`
	Result     json.RawMessage   `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	Revoked    bool              `json:"revoked,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	NextRunAt  *time.Time        `json:"next_run_at,omitempty"`
}
