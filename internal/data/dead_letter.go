package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/muudzo/moometrics2/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// DeadLetterTask is a task that exhausted its retry budget.
// Rows are written once and never updated; removal is an operator action.
type DeadLetterTask struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"id"`
	TaskID     string    `gorm:"column:task_id;size:64;uniqueIndex;not null" json:"task_id"`
	TaskName   string    `gorm:"column:task_name;size:128;index;not null" json:"task_name"`
	Payload    string    `gorm:"column:payload;type:text;not null" json:"payload"` // JSON {args, kwargs}
	Exception  string    `gorm:"column:exception;type:text;not null" json:"exception"`
	RetryCount int       `gorm:"column:retry_count;not null" json:"retry_count"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null;index" json:"recorded_at"`
}

// TableName specifies the table name for GORM.
func (DeadLetterTask) TableName() string {
	return "dead_letter_tasks"
}

// ErrDeadLetterNotFound is returned when no dead letter exists for a task id.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetterRepo persists dead letters through GORM.
type DeadLetterRepo struct {
	db  *gorm.DB
	log *log.Helper
}

// NewDeadLetterRepo creates a new DeadLetterRepo.
func NewDeadLetterRepo(db *gorm.DB, logger log.Logger) *DeadLetterRepo {
	return &DeadLetterRepo{
		db:  db,
		log: log.NewHelper(logger),
	}
}

// Record inserts a dead letter. It reports created=false without error when a
// row for the same task id already exists.
func (r *DeadLetterRepo) Record(ctx context.Context, rec *DeadLetterTask) (bool, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if pkgerrors.IsDuplicateKeyError(err) {
			r.log.Infof("dead letter for task %s already recorded", rec.TaskID)
			return false, nil
		}
		return false, fmt.Errorf("failed to record dead letter for task %s: %w", rec.TaskID, err)
	}

	return true, nil
}

// List returns the most recent dead letters, newest first.
func (r *DeadLetterRepo) List(ctx context.Context, limit int) ([]*DeadLetterTask, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var records []*DeadLetterTask
	if err := r.db.WithContext(ctx).
		Order("recorded_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	return records, nil
}

// GetByTaskID returns the dead letter of one task.
func (r *DeadLetterRepo) GetByTaskID(ctx context.Context, taskID string) (*DeadLetterTask, error) {
	var rec DeadLetterTask
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&rec).Error; err != nil {
		if pkgerrors.IsNotFoundError(err) {
			return nil, ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("failed to get dead letter for task %s: %w", taskID, err)
	}
	return &rec, nil
}
