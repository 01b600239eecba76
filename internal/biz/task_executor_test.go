package biz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/internal/model"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFixture struct {
	exec    *TaskExecutor
	queue   *data.TaskQueueRepo
	clock   *fakeClock
	store   *fakeDeadLetterStore
	metrics *metrics.Metrics
}

func newExecutorFixture(t *testing.T, defs ...TaskDefinition) *executorFixture {
	t.Helper()
	return newExecutorFixtureWithConf(t, &conf.Task{
		Workers:       1,
		WorkerEnabled: true,
		PollInterval:  time.Second,
		LeaseTimeout:  time.Minute,
		ResultTTL:     time.Hour,
		TaskTimeout:   2 * time.Second,
		Retry: &conf.Task_Retry{
			BaseDelay:  time.Second,
			MaxDelay:   time.Minute,
			MaxRetries: 2,
			Jitter:     0.5,
		},
	}, defs...)
}

func newExecutorFixtureWithConf(t *testing.T, c *conf.Task, defs ...TaskDefinition) *executorFixture {
	t.Helper()
	d, _ := setupData(t)
	queue := data.NewTaskQueueRepo(d, c, log.DefaultLogger)
	store := &fakeDeadLetterStore{}
	m := metrics.NewMetrics()
	clock := newFakeClock()

	exec := NewTaskExecutor(c, queue, defs, NewDeadLetterHook(store, m, log.DefaultLogger), m, log.DefaultLogger)
	exec.now = clock.Now
	exec.jitter = func() float64 { return 0 }

	return &executorFixture{exec: exec, queue: queue, clock: clock, store: store, metrics: m}
}

// runNext processes exactly one queued task.
func (f *executorFixture) runNext(t *testing.T) {
	t.Helper()
	took, err := f.exec.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, took, "expected a runnable task")
}

func (f *executorFixture) status(t *testing.T, id string) *model.TaskRecord {
	t.Helper()
	rec, err := f.exec.Status(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (f *executorFixture) stats(t *testing.T) data.QueueStats {
	t.Helper()
	stats, err := f.exec.QueueStats(context.Background())
	require.NoError(t, err)
	return stats
}

func handlerDef(name string, h TaskHandler) TaskDefinition {
	return TaskDefinition{Name: name, MaxRetries: -1, Handler: h}
}

func TestTaskExecutor_Success(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("echo", func(ctx context.Context, tc *TaskContext, p model.TaskPayload) (interface{}, error) {
		require.NoError(t, tc.ReportProgress(ctx, 1, 2))
		assert.Equal(t, 1, tc.Attempt)
		return map[string]interface{}{"echo": p.Args[0]}, nil
	}))
	ctx := context.Background()

	id, err := f.exec.Submit(ctx, "echo", model.TaskPayload{Args: []interface{}{"hello"}})
	require.NoError(t, err)

	rec := f.status(t, id)
	assert.Equal(t, model.TaskPending, rec.State)
	assert.Equal(t, 2, rec.MaxRetries)
	assert.NotNil(t, rec.Payload.Kwargs)
	assert.Equal(t, int64(1), f.stats(t).Ready)

	f.runNext(t)

	rec = f.status(t, id)
	assert.Equal(t, model.TaskSuccess, rec.State)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 0, rec.Retries)
	assert.Equal(t, &model.TaskProgressInfo{Current: 1, Total: 2}, rec.Progress)
	assert.JSONEq(t, `{"echo":"hello"}`, string(rec.Result))
	assert.Equal(t, data.QueueStats{}, f.stats(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TaskEvents.WithLabelValues("echo", "succeeded")))
}

func TestTaskExecutor_RetryThenDeadLetterOnce(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("flaky", func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
		return nil, errors.New("upstream unavailable")
	}))
	ctx := context.Background()

	id, err := f.exec.Submit(ctx, "flaky", model.TaskPayload{Kwargs: map[string]interface{}{"crop_type": "Maize"}})
	require.NoError(t, err)

	// attempt 1 fails, retry 1 is due after base_delay
	f.runNext(t)
	rec := f.status(t, id)
	assert.Equal(t, model.TaskRetry, rec.State)
	assert.Equal(t, 1, rec.Retries)
	require.NotNil(t, rec.NextRunAt)
	assert.Equal(t, f.clock.Now().Add(time.Second).UnixMilli(), rec.NextRunAt.UnixMilli())
	assert.Contains(t, rec.Error, "upstream unavailable")
	assert.Equal(t, int64(1), f.stats(t).Scheduled)

	n, err := f.exec.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "retry is not due yet")

	f.clock.Advance(time.Second)
	n, err = f.exec.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// attempt 2 fails, retry 2 waits twice as long
	f.runNext(t)
	rec = f.status(t, id)
	assert.Equal(t, 2, rec.Retries)
	assert.Equal(t, f.clock.Now().Add(2*time.Second).UnixMilli(), rec.NextRunAt.UnixMilli())

	f.clock.Advance(2 * time.Second)
	_, err = f.exec.PromoteDue(ctx)
	require.NoError(t, err)

	// attempt 3 fails with no retries left
	f.runNext(t)
	rec = f.status(t, id)
	assert.Equal(t, model.TaskFailed, rec.State)
	assert.Equal(t, 3, rec.Attempts)
	assert.Contains(t, rec.Error, "exhausted after 2 retries")
	assert.Equal(t, data.QueueStats{}, f.stats(t))

	records := f.store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].TaskID)
	assert.Equal(t, "flaky", records[0].TaskName)
	assert.Equal(t, 3, records[0].RetryCount, "retry_count is the number of attempts made")
	assert.Equal(t, "upstream unavailable", records[0].Exception)
	assert.JSONEq(t, `{"args":[],"kwargs":{"crop_type":"Maize"}}`, records[0].Payload)

	// a redelivered id of a finished task is dropped without a second dead letter
	require.NoError(t, f.queue.Enqueue(ctx, id))
	f.runNext(t)
	assert.Len(t, f.store.Records(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeadLetters.WithLabelValues("flaky")))
}

func TestTaskExecutor_ZeroRetries(t *testing.T) {
	f := newExecutorFixture(t, TaskDefinition{
		Name:       "once",
		MaxRetries: 0,
		Handler: func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
			return nil, errors.New("boom")
		},
	})

	id, err := f.exec.Submit(context.Background(), "once", model.TaskPayload{})
	require.NoError(t, err)
	f.runNext(t)

	assert.Equal(t, model.TaskFailed, f.status(t, id).State)
	require.Len(t, f.store.Records(), 1)
	assert.Equal(t, 1, f.store.Records()[0].RetryCount)
}

func TestTaskExecutor_PanicIsRetried(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("panicky", func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
		panic("nil map")
	}))

	id, err := f.exec.Submit(context.Background(), "panicky", model.TaskPayload{})
	require.NoError(t, err)
	f.runNext(t)

	rec := f.status(t, id)
	assert.Equal(t, model.TaskRetry, rec.State)
	assert.Contains(t, rec.Error, "task panicked: nil map")
}

func TestTaskExecutor_TimeoutIsRetried(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("slow", func(ctx context.Context, _ *TaskContext, _ model.TaskPayload) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	f.exec.taskTimeout = 50 * time.Millisecond

	id, err := f.exec.Submit(context.Background(), "slow", model.TaskPayload{})
	require.NoError(t, err)
	f.runNext(t)

	rec := f.status(t, id)
	assert.Equal(t, model.TaskRetry, rec.State)
	assert.Contains(t, rec.Error, context.DeadlineExceeded.Error())
}

func TestTaskExecutor_RevokePending(t *testing.T) {
	called := false
	f := newExecutorFixture(t, handlerDef("noop", func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
		called = true
		return nil, nil
	}))
	ctx := context.Background()

	id, err := f.exec.Submit(ctx, "noop", model.TaskPayload{})
	require.NoError(t, err)

	rec, err := f.exec.Revoke(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskRevoked, rec.State)
	assert.True(t, rec.Revoked)

	f.runNext(t)
	assert.False(t, called, "revoked task must not run")
	assert.Equal(t, model.TaskRevoked, f.status(t, id).State)
	assert.Empty(t, f.store.Records())
}

func TestTaskExecutor_RevokeRunning(t *testing.T) {
	var f *executorFixture
	steps := 0
	f = newExecutorFixture(t, handlerDef("long", func(ctx context.Context, tc *TaskContext, _ model.TaskPayload) (interface{}, error) {
		for i := 1; i <= 3; i++ {
			if err := tc.ReportProgress(ctx, i, 3); err != nil {
				return nil, err
			}
			steps++
			if i == 1 {
				// revoked from elsewhere while running
				rec, err := f.exec.Revoke(ctx, tc.TaskID)
				require.NoError(t, err)
				assert.Equal(t, model.TaskProgress, rec.State)
				assert.True(t, rec.Revoked)
			}
		}
		return "done", nil
	}))

	id, err := f.exec.Submit(context.Background(), "long", model.TaskPayload{})
	require.NoError(t, err)
	f.runNext(t)

	assert.Equal(t, 1, steps, "task stops at the next progress report")
	rec := f.status(t, id)
	assert.Equal(t, model.TaskRevoked, rec.State)
	assert.Empty(t, rec.Result)
	assert.Empty(t, f.store.Records())
}

func TestTaskExecutor_RevokeFinishedIsNoop(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("noop", func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
		return "ok", nil
	}))
	ctx := context.Background()

	id, err := f.exec.Submit(ctx, "noop", model.TaskPayload{})
	require.NoError(t, err)
	f.runNext(t)

	rec, err := f.exec.Revoke(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskSuccess, rec.State)
	assert.False(t, rec.Revoked)
	assert.JSONEq(t, `"ok"`, string(f.status(t, id).Result))
}

func TestTaskExecutor_ShutdownRequeues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := true
	f := newExecutorFixture(t, handlerDef("graceful", func(runCtx context.Context, _ *TaskContext, _ model.TaskPayload) (interface{}, error) {
		if first {
			first = false
			// the executor is stopped while the attempt runs
			cancel()
			return nil, runCtx.Err()
		}
		return "ok", nil
	}))

	id, err := f.exec.Submit(context.Background(), "graceful", model.TaskPayload{})
	require.NoError(t, err)

	took, err := f.exec.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, took)

	rec := f.status(t, id)
	assert.Equal(t, model.TaskPending, rec.State)
	assert.Equal(t, 0, rec.Retries, "shutdown does not spend a retry")
	assert.Equal(t, data.QueueStats{Ready: 1}, f.stats(t))

	f.runNext(t)
	assert.Equal(t, model.TaskSuccess, f.status(t, id).State)
}

func TestTaskExecutor_UnknownTask(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	_, err := f.exec.Submit(ctx, "ghost", model.TaskPayload{})
	assert.ErrorIs(t, err, ErrUnknownTask)

	// a record whose handler disappeared, e.g. after a deploy
	now := time.Now().UTC()
	require.NoError(t, f.queue.SaveTask(ctx, &model.TaskRecord{
		ID: "orphan", Name: "ghost", State: model.TaskPending, MaxRetries: 3, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, f.queue.Enqueue(ctx, "orphan"))
	f.runNext(t)

	rec := f.status(t, "orphan")
	assert.Equal(t, model.TaskFailed, rec.State)
	assert.Contains(t, rec.Error, ErrUnknownTask.Error())
	require.Len(t, f.store.Records(), 1)
}

func TestTaskExecutor_StatusNotFound(t *testing.T) {
	f := newExecutorFixture(t)

	_, err := f.exec.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.exec.Revoke(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskExecutor_LeaseOutlivesTaskTimeout(t *testing.T) {
	recovered := -1
	var f *executorFixture
	f = newExecutorFixtureWithConf(t, &conf.Task{
		Workers:       1,
		WorkerEnabled: true,
		PollInterval:  time.Second,
		LeaseTimeout:  time.Minute,
		ResultTTL:     time.Hour,
		TaskTimeout:   5 * time.Minute,
		Retry:         &conf.Task_Retry{BaseDelay: time.Second, MaxDelay: time.Minute},
	}, handlerDef("slow", func(ctx context.Context, _ *TaskContext, _ model.TaskPayload) (interface{}, error) {
		// still inside task_timeout but past the configured lease
		f.clock.Advance(2 * time.Minute)
		n, err := f.exec.RecoverLeases(ctx)
		if err != nil {
			return nil, err
		}
		recovered = n
		return "done", nil
	}))
	assert.Equal(t, 5*time.Minute+conf.TaskLeaseMargin, f.exec.lease)

	ctx := context.Background()
	id, err := f.exec.Submit(ctx, "slow", model.TaskPayload{})
	require.NoError(t, err)
	f.runNext(t)

	assert.Equal(t, 0, recovered, "a running task must not be handed to another worker")
	assert.Equal(t, model.TaskSuccess, f.status(t, id).State)
	assert.Equal(t, data.QueueStats{}, f.stats(t))
}

func TestTaskExecutor_RecoverLeases(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("noop", func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
		return nil, nil
	}))
	ctx := context.Background()

	id, err := f.exec.Submit(ctx, "noop", model.TaskPayload{})
	require.NoError(t, err)

	// a worker took the task and crashed
	_, err = f.queue.Dequeue(ctx, f.clock.Now(), time.Second, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.stats(t).Processing)

	n, err := f.exec.RecoverLeases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(2 * time.Minute)
	n, err = f.exec.RecoverLeases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.runNext(t)
	assert.Equal(t, model.TaskSuccess, f.status(t, id).State)
}

func TestTaskExecutor_QueueStatsMetrics(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("noop", func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
		return nil, nil
	}))

	for i := 0; i < 3; i++ {
		_, err := f.exec.Submit(context.Background(), "noop", model.TaskPayload{})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), f.stats(t).Ready)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.QueueDepth.WithLabelValues("ready")))
}

func TestTaskExecutor_StartStop(t *testing.T) {
	f := newExecutorFixture(t, handlerDef("noop", func(context.Context, *TaskContext, model.TaskPayload) (interface{}, error) {
		return map[string]string{"status": "completed"}, nil
	}))
	f.exec.now = time.Now

	errCh := make(chan error, 1)
	go func() { errCh <- f.exec.Start(context.Background()) }()

	id, err := f.exec.Submit(context.Background(), "noop", model.TaskPayload{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		rec, err := f.exec.Status(context.Background(), id)
		return err == nil && rec.State == model.TaskSuccess
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.exec.Stop(stopCtx))
	require.NoError(t, <-errCh)

	var result map[string]string
	require.NoError(t, json.Unmarshal(f.status(t, id).Result, &result))
	assert.Equal(t, "completed", result["status"])
}

func TestTaskExecutor_DisabledWorkers(t *testing.T) {
	f := newExecutorFixture(t)
	f.exec.enabled = false

	assert.NoError(t, f.exec.Start(context.Background()))
	assert.NoError(t, f.exec.Stop(context.Background()))
}
