package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	taskKeyPrefix       = "moometrics:task:"
	taskRevokedSuffix   = ":revoked"
	taskReadyKey        = "moometrics:tasks:ready"
	taskScheduledKey    = "moometrics:tasks:scheduled"
	taskProcessingKey   = "moometrics:tasks:processing"
	pendingRecordTTL    = 24 * time.Hour
	defaultResultTTL    = time.Hour
	promoteBatchSize    = 100
	recoverLeaseBatches = 100
	// claimPollInterval is the pause between claim attempts on an empty ready list
	claimPollInterval = 100 * time.Millisecond
)

// ErrTaskRecordNotFound is returned when a task record is missing or expired.
var ErrTaskRecordNotFound = errors.New("task record not found")

// ErrQueueUnavailable is returned when Redis is not configured.
var ErrQueueUnavailable = errors.New("task queue unavailable: redis client is nil")

// moveDueScript moves members of a sorted set whose score is <= ARGV[1]
// onto the head of the ready list, atomically.
var moveDueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call(ARGV[3], KEYS[2], id)
end
return #ids
`)

// claimScript pops the next runnable id and leases it in one step, so a
// crash can never leave an id that is neither ready nor leased.
// KEYS[1] ready list, KEYS[2] processing zset, ARGV[1] lease deadline (unix ms).
var claimScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[1]), id)
return id
`)

// QueueStats is the number of task ids in each queue structure.
type QueueStats struct {
	Ready      int64
	Scheduled  int64
	Processing int64
}

// TaskQueueRepo is a durable Redis task queue.
//
// Layout:
//   - moometrics:task:{id}          JSON TaskRecord
//   - moometrics:tasks:ready        list of runnable ids (LPUSH, claimed by RPOP+ZADD in one script)
//   - moometrics:tasks:scheduled    zset of ids waiting for a retry, score = run at (unix ms)
//   - moometrics:tasks:processing   zset of leased ids, score = lease deadline (unix ms)
type TaskQueueRepo struct {
	rdb       *redis.Client
	resultTTL time.Duration
	log       *log.Helper
}

// NewTaskQueueRepo creates a new TaskQueueRepo.
func NewTaskQueueRepo(d *Data, c *conf.Task, logger log.Logger) *TaskQueueRepo {
	resultTTL := defaultResultTTL
	if c != nil && c.ResultTTL > 0 {
		resultTTL = c.ResultTTL
	}
	return &TaskQueueRepo{
		rdb:       d.GetRedisClient(),
		resultTTL: resultTTL,
		log:       log.NewHelper(logger),
	}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func unixMs(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// SaveTask writes the record. Terminal records expire after the result TTL.
func (r *TaskQueueRepo) SaveTask(ctx context.Context, rec *model.TaskRecord) error {
	if r.rdb == nil {
		return ErrQueueUnavailable
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", rec.ID, err)
	}

	ttl := pendingRecordTTL
	if rec.State.Terminal() {
		ttl = r.resultTTL
	}

	if err := r.rdb.Set(ctx, taskKey(rec.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save task %s: %w", rec.ID, err)
	}
	return nil
}

// GetTask loads a record by id.
func (r *TaskQueueRepo) GetTask(ctx context.Context, id string) (*model.TaskRecord, error) {
	if r.rdb == nil {
		return nil, ErrQueueUnavailable
	}

	data, err := r.rdb.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskRecordNotFound
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	var rec model.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return &rec, nil
}

// Enqueue makes a task runnable.
func (r *TaskQueueRepo) Enqueue(ctx context.Context, id string) error {
	if r.rdb == nil {
		return ErrQueueUnavailable
	}
	if err := r.rdb.LPush(ctx, taskReadyKey, id).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", id, err)
	}
	return nil
}

// Dequeue waits up to wait for a runnable task and leases it until now+lease.
// It returns an empty id when nothing became runnable.
func (r *TaskQueueRepo) Dequeue(ctx context.Context, now time.Time, wait, lease time.Duration) (string, error) {
	if r.rdb == nil {
		return "", ErrQueueUnavailable
	}

	deadline := unixMs(now.Add(lease))
	giveUp := time.Now().Add(wait)
	for {
		id, err := claimScript.Run(ctx, r.rdb, []string{taskReadyKey, taskProcessingKey}, deadline).Text()
		switch {
		case err == nil:
			return id, nil
		case !errors.Is(err, redis.Nil):
			return "", fmt.Errorf("failed to dequeue task: %w", err)
		}

		remaining := time.Until(giveUp)
		if remaining <= 0 {
			return "", nil
		}
		pause := claimPollInterval
		if remaining < pause {
			pause = remaining
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", nil
		case <-timer.C:
		}
	}
}

// Ack releases the lease of a finished task.
func (r *TaskQueueRepo) Ack(ctx context.Context, id string) error {
	if r.rdb == nil {
		return ErrQueueUnavailable
	}
	if err := r.rdb.ZRem(ctx, taskProcessingKey, id).Err(); err != nil {
		return fmt.Errorf("failed to ack task %s: %w", id, err)
	}
	return nil
}

// Schedule releases the lease and parks the task until runAt.
func (r *TaskQueueRepo) Schedule(ctx context.Context, id string, runAt time.Time) error {
	if r.rdb == nil {
		return ErrQueueUnavailable
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, taskScheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: id})
		pipe.ZRem(ctx, taskProcessingKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", id, err)
	}
	return nil
}

// PromoteDue moves retries whose run time has come to the ready list.
func (r *TaskQueueRepo) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	if r.rdb == nil {
		return 0, ErrQueueUnavailable
	}
	n, err := moveDueScript.Run(ctx, r.rdb,
		[]string{taskScheduledKey, taskReadyKey},
		unixMs(now), promoteBatchSize, "LPUSH",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote scheduled tasks: %w", err)
	}
	return n, nil
}

// RecoverExpiredLeases requeues tasks whose worker lease expired, at the
// consuming end of the ready list so they run next.
func (r *TaskQueueRepo) RecoverExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	if r.rdb == nil {
		return 0, ErrQueueUnavailable
	}
	n, err := moveDueScript.Run(ctx, r.rdb,
		[]string{taskProcessingKey, taskReadyKey},
		unixMs(now), recoverLeaseBatches, "RPUSH",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to recover expired leases: %w", err)
	}
	return n, nil
}

// MarkRevoked flags a task as revoked. The flag outlives the record's next writes
// so a worker saving progress cannot clear it.
func (r *TaskQueueRepo) MarkRevoked(ctx context.Context, id string) error {
	if r.rdb == nil {
		return ErrQueueUnavailable
	}
	if err := r.rdb.Set(ctx, taskKey(id)+taskRevokedSuffix, "1", pendingRecordTTL).Err(); err != nil {
		return fmt.Errorf("failed to revoke task %s: %w", id, err)
	}
	return nil
}

// IsRevoked reports whether MarkRevoked was called for the task.
func (r *TaskQueueRepo) IsRevoked(ctx context.Context, id string) (bool, error) {
	if r.rdb == nil {
		return false, ErrQueueUnavailable
	}
	n, err := r.rdb.Exists(ctx, taskKey(id)+taskRevokedSuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation of task %s: %w", id, err)
	}
	return n > 0, nil
}

// Stats returns the current queue depths.
func (r *TaskQueueRepo) Stats(ctx context.Context) (QueueStats, error) {
	if r.rdb == nil {
		return QueueStats{}, ErrQueueUnavailable
	}
	var ready *redis.IntCmd
	var scheduled, processing *redis.IntCmd
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.LLen(ctx, taskReadyKey)
		scheduled = pipe.ZCard(ctx, taskScheduledKey)
		processing = pipe.ZCard(ctx, taskProcessingKey)
		return nil
	})
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return QueueStats{
		Ready:      ready.Val(),
		Scheduled:  scheduled.Val(),
		Processing: processing.Val(),
	}, nil
}
