package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/internal/model"
	pkglog "github.com/muudzo/moometrics2/pkg/log"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// finalizeTimeout bounds the writes that close an attempt, which must survive shutdown
	finalizeTimeout = 5 * time.Second
	// errorBackoff is the pause after a queue error before polling again
	errorBackoff = time.Second
)

// DeadLetterHook is invoked synchronously, once, when a task exhausts its retries.
type DeadLetterHook func(ctx context.Context, rec *model.TaskRecord, cause *TaskExhaustedError)

// TaskExecutor runs registered tasks from a durable Redis queue.
// It implements the Kratos transport.Server interface so the App starts and stops it.
type TaskExecutor struct {
	queue       TaskQueue
	definitions map[string]TaskDefinition
	retry       RetryPolicy
	deadLetter  DeadLetterHook

	workers     int
	enabled     bool
	poll        time.Duration
	lease       time.Duration
	taskTimeout time.Duration

	metrics *metrics.Metrics
	log     *pkglog.LogHelper
	now     func() time.Time
	jitter  func() float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTaskExecutor creates a TaskExecutor with the given task definitions.
func NewTaskExecutor(
	c *conf.Task,
	queue TaskQueue,
	defs TaskDefinitions,
	hook DeadLetterHook,
	m *metrics.Metrics,
	logger log.Logger,
) *TaskExecutor {
	e := &TaskExecutor{
		queue:       queue,
		definitions: make(map[string]TaskDefinition, len(defs)),
		retry:       NewRetryPolicy(c),
		deadLetter:  hook,
		workers:     4,
		enabled:     true,
		poll:        time.Second,
		lease:       10 * time.Minute,
		taskTimeout: 5 * time.Minute,
		metrics:     m,
		log:         pkglog.NewLogHelper(logger),
		now:         time.Now,
		jitter:      rand.Float64,
	}
	if c != nil {
		e.enabled = c.WorkerEnabled
		if c.Workers > 0 {
			e.workers = c.Workers
		}
		if c.PollInterval > 0 {
			e.poll = c.PollInterval
		}
		if c.LeaseTimeout > 0 {
			e.lease = c.LeaseTimeout
		}
		if c.TaskTimeout > 0 {
			e.taskTimeout = c.TaskTimeout
		}
	}
	// 租约必须长于一次完整执行, 否则执行中的任务会被 RecoverLeases 重复投递
	if floor := e.taskTimeout + conf.TaskLeaseMargin; e.lease < floor {
		e.log.Warnw("msg", "lease timeout shorter than task timeout, raising it",
			"lease_timeout", e.lease.String(), "task_timeout", e.taskTimeout.String(), "lease", floor.String())
		e.lease = floor
	}
	for _, def := range defs {
		e.Register(def)
	}
	return e
}

// Register adds or replaces a task definition. Call before Start.
func (e *TaskExecutor) Register(def TaskDefinition) {
	e.definitions[def.Name] = def
}

// Submit records a PENDING task and makes it runnable. It does not wait for execution.
func (e *TaskExecutor) Submit(ctx context.Context, name string, payload model.TaskPayload) (string, error) {
	return e.SubmitAs(ctx, "", name, payload)
}

// SubmitAs is Submit for a task owned by userID.
func (e *TaskExecutor) SubmitAs(ctx context.Context, userID, name string, payload model.TaskPayload) (string, error) {
	def, ok := e.definitions[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	maxRetries := e.retry.MaxRetries
	if def.MaxRetries >= 0 {
		maxRetries = def.MaxRetries
	}
	if payload.Args == nil {
		payload.Args = []interface{}{}
	}
	if payload.Kwargs == nil {
		payload.Kwargs = map[string]interface{}{}
	}

	now := e.now().UTC()
	rec := &model.TaskRecord{
		ID:         uuid.NewString(),
		Name:       name,
		UserID:     userID,
		Payload:    payload,
		State:      model.TaskPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.queue.SaveTask(ctx, rec); err != nil {
		return "", fmt.Errorf("submit %s: %w", name, err)
	}
	if err := e.queue.Enqueue(ctx, rec.ID); err != nil {
		return "", fmt.Errorf("submit %s: %w", name, err)
	}

	e.metrics.RecordTaskEvent(name, "submitted")
	e.log.Task("task submitted", "task_id", rec.ID, "task", name)
	return rec.ID, nil
}

// Status returns the current record of a task.
func (e *TaskExecutor) Status(ctx context.Context, id string) (*model.TaskRecord, error) {
	rec, err := e.queue.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrTaskRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if !rec.State.Terminal() {
		if revoked, err := e.queue.IsRevoked(ctx, id); err == nil {
			rec.Revoked = revoked
		}
	}
	return rec, nil
}

// Revoke cancels a task. Waiting tasks are skipped; a running task stops at its
// next progress report. Revoking a finished task is a no-op.
func (e *TaskExecutor) Revoke(ctx context.Context, id string) (*model.TaskRecord, error) {
	rec, err := e.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.State.Terminal() {
		return rec, nil
	}

	if err := e.queue.MarkRevoked(ctx, id); err != nil {
		return nil, fmt.Errorf("revoke %s: %w", id, err)
	}
	rec.Revoked = true

	if rec.State == model.TaskPending || rec.State == model.TaskRetry {
		rec.State = model.TaskRevoked
		rec.UpdatedAt = e.now().UTC()
		if err := e.queue.SaveTask(ctx, rec); err != nil {
			e.log.Degraded("failed to save revoked task", "task_id", id, "error", err)
		}
	}

	e.metrics.RecordTaskEvent(rec.Name, "revoked")
	e.log.Task("task revoked", "task_id", id, "task", rec.Name, "state", string(rec.State))
	return rec, nil
}

// Start runs the workers and the retry scheduler until Stop or ctx cancellation.
func (e *TaskExecutor) Start(ctx context.Context) error {
	if !e.enabled {
		e.log.Startup("task workers disabled, executor accepts submissions only")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()
	defer close(done)

	e.log.Startup("task executor started", "workers", e.workers, "poll_interval", e.poll.String())

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			e.work(gctx)
			return nil
		})
	}
	g.Go(func() error {
		e.schedule(gctx)
		return nil
	})

	return g.Wait()
}

// Stop cancels the workers and waits for in-flight attempts to be finalized.
func (e *TaskExecutor) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		e.log.Info("task executor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *TaskExecutor) work(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := e.RunOnce(ctx); err != nil && ctx.Err() == nil {
			e.log.Degraded("task queue unavailable", "error", err)
			sleep(ctx, errorBackoff)
		}
	}
}

func (e *TaskExecutor) schedule(ctx context.Context) {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				e.log.Degraded("failed to promote due retries", "error", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// PromoteDue moves retries whose delay has elapsed back to the ready queue.
func (e *TaskExecutor) PromoteDue(ctx context.Context) (int, error) {
	n, err := e.queue.PromoteDue(ctx, e.now())
	if n > 0 {
		e.log.Scheduler("promoted due retries", "count", n)
	}
	return n, err
}

// RecoverLeases requeues tasks whose worker lease has expired.
func (e *TaskExecutor) RecoverLeases(ctx context.Context) (int, error) {
	n, err := e.queue.RecoverExpiredLeases(ctx, e.now())
	if n > 0 {
		e.log.Scheduler("recovered tasks with expired leases", "count", n)
	}
	return n, err
}

// QueueStats returns current queue depths and exports them as metrics.
func (e *TaskExecutor) QueueStats(ctx context.Context) (data.QueueStats, error) {
	stats, err := e.queue.Stats(ctx)
	if err != nil {
		return stats, err
	}
	e.metrics.SetQueueDepth("ready", stats.Ready)
	e.metrics.SetQueueDepth("scheduled", stats.Scheduled)
	e.metrics.SetQueueDepth("processing", stats.Processing)
	return stats, nil
}

// RunOnce waits up to the poll interval for a runnable task and processes it.
// It reports whether a task was taken.
func (e *TaskExecutor) RunOnce(ctx context.Context) (bool, error) {
	id, err := e.queue.Dequeue(ctx, e.now(), e.poll, e.lease)
	if err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}
	e.process(ctx, id)
	return true, nil
}

func (e *TaskExecutor) process(ctx context.Context, id string) {
	rec, err := e.queue.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrTaskRecordNotFound) {
			e.log.Warnw("msg", "dropping task without record", "task_id", id)
			e.ack(ctx, id)
			return
		}
		// the lease stays, so the task is recovered once it expires
		e.log.Degraded("failed to load task", "task_id", id, "error", err)
		return
	}

	if rec.State.Terminal() {
		e.ack(ctx, id)
		return
	}

	tc := &TaskContext{TaskID: id, exec: e, rec: rec}
	if tc.Revoked(ctx) {
		e.finish(ctx, rec, model.TaskRevoked, nil, "")
		e.metrics.RecordTaskEvent(rec.Name, "skipped_revoked")
		return
	}

	def, ok := e.definitions[rec.Name]
	if !ok {
		e.exhaust(ctx, rec, fmt.Errorf("%w: %s", ErrUnknownTask, rec.Name))
		return
	}

	rec.Attempts++
	rec.State = model.TaskRunning
	rec.NextRunAt = nil
	rec.UpdatedAt = e.now().UTC()
	tc.Attempt = rec.Attempts
	if err := e.queue.SaveTask(ctx, rec); err != nil {
		e.log.Degraded("failed to mark task running", "task_id", id, "error", err)
	}

	e.log.Task("task started", "task_id", id, "task", rec.Name, "attempt", rec.Attempts)
	start := time.Now()
	result, runErr := e.execute(ctx, def, tc, rec.Payload)
	e.metrics.ObserveTask(rec.Name, time.Since(start))

	switch {
	case runErr == nil:
		raw, err := json.Marshal(result)
		if err != nil {
			e.retryOrExhaust(ctx, rec, fmt.Errorf("encode result: %w", err))
			return
		}
		e.finish(ctx, rec, model.TaskSuccess, raw, "")
		e.metrics.RecordTaskEvent(rec.Name, "succeeded")

	case errors.Is(runErr, ErrTaskRevoked):
		e.finish(ctx, rec, model.TaskRevoked, nil, "")
		e.metrics.RecordTaskEvent(rec.Name, "revoked")

	case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		// executor shutting down: hand the task back without spending a retry
		e.requeue(ctx, rec)

	default:
		e.retryOrExhaust(ctx, rec, runErr)
	}
}

// execute runs the handler under the task timeout and turns panics into errors.
func (e *TaskExecutor) execute(ctx context.Context, def TaskDefinition, tc *TaskContext, payload model.TaskPayload) (result interface{}, err error) {
	runCtx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return def.Handler(runCtx, tc, payload)
}

func (e *TaskExecutor) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func (e *TaskExecutor) finish(ctx context.Context, rec *model.TaskRecord, state model.TaskState, result json.RawMessage, errMsg string) {
	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()

	rec.State = state
	rec.Result = result
	rec.Error = errMsg
	rec.NextRunAt = nil
	rec.UpdatedAt = e.now().UTC()
	if state == model.TaskRevoked {
		rec.Revoked = true
	}
	if err := e.queue.SaveTask(fctx, rec); err != nil {
		e.log.Degraded("failed to save task result", "task_id", rec.ID, "state", string(state), "error", err)
	}
	e.ack(fctx, rec.ID)
	e.log.Task("task finished", "task_id", rec.ID, "task", rec.Name, "state", string(state), "attempts", rec.Attempts)
}

func (e *TaskExecutor) requeue(ctx context.Context, rec *model.TaskRecord) {
	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()

	rec.State = model.TaskPending
	rec.UpdatedAt = e.now().UTC()
	if err := e.queue.SaveTask(fctx, rec); err != nil {
		e.log.Degraded("failed to save requeued task", "task_id", rec.ID, "error", err)
	}
	if err := e.queue.Enqueue(fctx, rec.ID); err != nil {
		// the lease is kept, lease recovery will pick the task up
		e.log.Degraded("failed to requeue task", "task_id", rec.ID, "error", err)
		return
	}
	e.ack(fctx, rec.ID)
}

func (e *TaskExecutor) retryOrExhaust(ctx context.Context, rec *model.TaskRecord, cause error) {
	if rec.Retries >= rec.MaxRetries {
		e.exhaust(ctx, rec, cause)
		return
	}

	execErr := &TaskExecutionError{TaskID: rec.ID, Attempt: rec.Attempts, Err: cause}
	delay := e.retry.Delay(rec.Retries, e.jitter())
	runAt := e.now().Add(delay)

	fctx, cancel := e.finalizeContext(ctx)
	defer cancel()

	rec.Retries++
	rec.State = model.TaskRetry
	rec.Error = execErr.Error()
	rec.NextRunAt = &runAt
	rec.UpdatedAt = e.now().UTC()
	if err := e.queue.SaveTask(fctx, rec); err != nil {
		e.log.Degraded("failed to save retrying task", "task_id", rec.ID, "error", err)
	}
	if err := e.queue.Schedule(fctx, rec.ID, runAt); err != nil {
		e.log.Degraded("failed to schedule retry", "task_id", rec.ID, "error", err)
	}

	e.metrics.RecordTaskEvent(rec.Name, "retried")
	e.log.Warnw("msg", "task attempt failed, retry scheduled",
		"type", "task",
		"task_id", rec.ID,
		"task", rec.Name,
		"attempt", rec.Attempts,
		"retry", rec.Retries,
		"max_retries", rec.MaxRetries,
		"delay", delay.String(),
		"error", cause,
	)
}

func (e *TaskExecutor) exhaust(ctx context.Context, rec *model.TaskRecord, cause error) {
	exhausted := &TaskExhaustedError{TaskID: rec.ID, Retries: rec.Retries, Err: cause}
	e.finish(ctx, rec, model.TaskFailed, nil, exhausted.Error())
	e.metrics.RecordTaskEvent(rec.Name, "failed")

	if e.deadLetter != nil {
		fctx, cancel := e.finalizeContext(ctx)
		defer cancel()
		e.deadLetter(fctx, rec, exhausted)
	}
}

func (e *TaskExecutor) ack(ctx context.Context, id string) {
	if err := e.queue.Ack(ctx, id); err != nil {
		e.log.Degraded("failed to ack task", "task_id", id, "error", err)
	}
}
