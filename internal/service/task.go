package service

import (
	"context"
	stderrors "errors"

	v1 "github.com/muudzo/moometrics2/api/v1"
	"github.com/muudzo/moometrics2/internal/biz"
	"github.com/muudzo/moometrics2/internal/model"
	pkglog "github.com/muudzo/moometrics2/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultReportType = "Annual Livestock Summary"
	defaultCropType   = "Maize"
)

// TaskService implements the TaskService HTTP interface.
type TaskService struct {
	exec   *biz.TaskExecutor
	logger *log.Helper
}

// NewTaskService creates a new TaskService instance.
func NewTaskService(exec *biz.TaskExecutor, logger log.Logger) *TaskService {
	return &TaskService{
		exec:   exec,
		logger: log.NewHelper(logger),
	}
}

// callerID returns the authenticated user id set by the auth middleware.
func callerID(ctx context.Context) (string, error) {
	userID := pkglog.GetUserID(ctx)
	if userID == "" {
		return "", errors.Unauthorized("UNAUTHORIZED", "caller identity missing")
	}
	return userID, nil
}

// SubmitReport queues generate_report_task for the caller.
func (s *TaskService) SubmitReport(ctx context.Context, req *v1.SubmitReportRequest) (*v1.SubmitTaskReply, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	reportType := req.ReportType
	if reportType == "" {
		reportType = defaultReportType
	}

	id, err := s.exec.SubmitAs(ctx, userID, biz.TaskGenerateReport, model.TaskPayload{
		Args: []interface{}{reportType, userID},
	})
	if err != nil {
		return nil, s.submitError(err)
	}
	return &v1.SubmitTaskReply{Message: "Report generation started", TaskID: id}, nil
}

// SubmitPrediction queues ai_prediction_task for the caller.
func (s *TaskService) SubmitPrediction(ctx context.Context, req *v1.SubmitPredictionRequest) (*v1.SubmitTaskReply, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	cropType := req.CropType
	if cropType == "" {
		cropType = defaultCropType
	}

	id, err := s.exec.SubmitAs(ctx, userID, biz.TaskAIPrediction, model.TaskPayload{
		Kwargs: map[string]interface{}{
			"crop_type": cropType,
			"user_id":   userID,
		},
	})
	if err != nil {
		return nil, s.submitError(err)
	}
	return &v1.SubmitTaskReply{Message: "AI prediction started", TaskID: id}, nil
}

func (s *TaskService) submitError(err error) error {
	s.logger.Errorw("failed to submit task", "error", err)
	if stderrors.Is(err, biz.ErrUnknownTask) {
		return errors.InternalServer("UNKNOWN_TASK", err.Error())
	}
	return errors.ServiceUnavailable("TASK_QUEUE_UNAVAILABLE", "task queue is unavailable, retry later")
}

// GetTask returns the status of a task owned by the caller.
func (s *TaskService) GetTask(ctx context.Context, req *v1.TaskRequest) (*v1.TaskReply, error) {
	rec, err := s.ownedTask(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return toTaskReply(rec), nil
}

// RevokeTask revokes a task owned by the caller. Finished tasks are returned unchanged.
func (s *TaskService) RevokeTask(ctx context.Context, req *v1.TaskRequest) (*v1.TaskReply, error) {
	if _, err := s.ownedTask(ctx, req.ID); err != nil {
		return nil, err
	}
	rec, err := s.exec.Revoke(ctx, req.ID)
	if err != nil {
		return nil, s.lookupError(req.ID, err)
	}
	s.logger.Infow("msg", "task revoke requested", "task_id", req.ID, "user_id", pkglog.GetUserID(ctx))
	return toTaskReply(rec), nil
}

// ownedTask loads a task for the caller. Another user's task is reported as
// not found so task ids cannot be guessed across users.
func (s *TaskService) ownedTask(ctx context.Context, id string) (*model.TaskRecord, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.exec.Status(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	if rec.UserID != userID {
		s.logger.Warnw("msg", "task access denied", "task_id", id, "user_id", userID)
		return nil, errors.NotFound("TASK_NOT_FOUND", "task "+id+" not found or expired")
	}
	return rec, nil
}

func (s *TaskService) lookupError(id string, err error) error {
	if stderrors.Is(err, biz.ErrTaskNotFound) {
		return errors.NotFound("TASK_NOT_FOUND", "task "+id+" not found or expired")
	}
	s.logger.Errorw("failed to load task", "task_id", id, "error", err)
	return errors.ServiceUnavailable("TASK_QUEUE_UNAVAILABLE", "task queue is unavailable, retry later")
}

func toTaskReply(rec *model.TaskRecord) *v1.TaskReply {
	reply := &v1.TaskReply{
		TaskID:     rec.ID,
		Name:       rec.Name,
		State:      string(rec.State),
		Result:     rec.Result,
		Error:      rec.Error,
		Attempts:   rec.Attempts,
		Retries:    rec.Retries,
		MaxRetries: rec.MaxRetries,
		Revoked:    rec.Revoked,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		NextRunAt:  rec.NextRunAt,
	}
	if rec.Progress != nil {
		reply.Progress = &v1.TaskProgress{Current: rec.Progress.Current, Total: rec.Progress.Total}
	}
	return reply
}
