package biz

import (
	"context"
	"time"

	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/internal/model"
)

// TaskQueue is the durable store behind the task executor.
type TaskQueue interface {
	SaveTask(ctx context.Context, rec *model.TaskRecord) error
	GetTask(ctx context.Context, id string) (*model.TaskRecord, error)
	Enqueue(ctx context.Context, id string) error
	Dequeue(ctx context.Context, now time.Time, wait, lease time.Duration) (string, error)
	Ack(ctx context.Context, id string) error
	Schedule(ctx context.Context, id string, runAt time.Time) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error)
	MarkRevoked(ctx context.Context, id string) error
	IsRevoked(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (data.QueueStats, error)
}

// DeadLetterStore persists tasks that exhausted their retries.
type DeadLetterStore interface {
	// Record reports created=false when the task already has a dead letter.
	Record(ctx context.Context, rec *data.DeadLetterTask) (bool, error)
	List(ctx context.Context, limit int) ([]*data.DeadLetterTask, error)
}

// TaskHandler runs one attempt of a task. Returning an error schedules a retry
// unless the task has no retries left; ErrTaskRevoked ends the task as REVOKED.
type TaskHandler func(ctx context.Context, tc *TaskContext, payload model.TaskPayload) (interface{}, error)

// TaskDefinition registers a handler under a task name.
type TaskDefinition struct {
	Name string
	// MaxRetries overrides the configured retry budget when >= 0.
	MaxRetries int
	Handler    TaskHandler
}

// TaskDefinitions is the set of handlers known to the executor.
type TaskDefinitions []TaskDefinition

// TaskContext gives a running handler access to its own record.
type TaskContext struct {
	TaskID  string
	Attempt int

	exec *TaskExecutor
	rec  *model.TaskRecord
}

// ReportProgress publishes {current, total} and returns ErrTaskRevoked once the task
// has been revoked; handlers are expected to stop and return that error.
func (tc *TaskContext) ReportProgress(ctx context.Context, current, total int) error {
	if tc.Revoked(ctx) {
		return ErrTaskRevoked
	}

	tc.rec.State = model.TaskProgress
	tc.rec.Progress = &model.TaskProgressInfo{Current: current, Total: total}
	tc.rec.UpdatedAt = tc.exec.now().UTC()
	if err := tc.exec.queue.SaveTask(ctx, tc.rec); err != nil {
		tc.exec.log.Degraded("failed to save task progress", "task_id", tc.TaskID, "error", err)
	}
	return nil
}

// Revoked reports whether the task has been revoked. Lookup failures read as not revoked.
func (tc *TaskContext) Revoked(ctx context.Context) bool {
	revoked, err := tc.exec.queue.IsRevoked(ctx, tc.TaskID)
	if err != nil {
		tc.exec.log.Degraded("failed to check task revocation", "task_id", tc.TaskID, "error", err)
		return false
	}
	return revoked
}
