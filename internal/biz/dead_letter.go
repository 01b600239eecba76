package biz

import (
	"context"
	"encoding/json"

	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/internal/model"
	pkglog "github.com/muudzo/moometrics2/pkg/log"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// NewDeadLetterHook returns the hook that writes exhausted tasks to the dead-letter store.
// Write failures are logged and never propagated to the executor.
func NewDeadLetterHook(store DeadLetterStore, m *metrics.Metrics, logger log.Logger) DeadLetterHook {
	helper := pkglog.NewLogHelper(logger)

	return func(ctx context.Context, rec *model.TaskRecord, cause *TaskExhaustedError) {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			payload = []byte(`{}`)
		}

		exception := ""
		if cause.Err != nil {
			exception = cause.Err.Error()
		}

		created, err := store.Record(ctx, &data.DeadLetterTask{
			TaskID:     rec.ID,
			TaskName:   rec.Name,
			Payload:    string(payload),
			Exception:  exception,
			RetryCount: rec.Attempts,
		})
		if err != nil {
			helper.Errorw("msg", "failed to persist dead letter",
				"type", "dead_letter",
				"task_id", rec.ID,
				"task", rec.Name,
				"error", err,
			)
			return
		}
		if !created {
			helper.Info("dead letter already recorded for task " + rec.ID)
			return
		}

		m.RecordDeadLetter(rec.Name)
		helper.DeadLetter("task failed permanently and was moved to the dead-letter store",
			"task_id", rec.ID,
			"task", rec.Name,
			"retries", cause.Retries,
			"exception", exception,
		)
	}
}

// DeadLetterUsecase exposes the dead-letter store read-only.
type DeadLetterUsecase struct {
	store DeadLetterStore
}

// NewDeadLetterUsecase creates a DeadLetterUsecase.
func NewDeadLetterUsecase(store DeadLetterStore) *DeadLetterUsecase {
	return &DeadLetterUsecase{store: store}
}

// List returns the most recent dead letters, newest first.
func (uc *DeadLetterUsecase) List(ctx context.Context, limit int) ([]*data.DeadLetterTask, error) {
	return uc.store.List(ctx, limit)
}
