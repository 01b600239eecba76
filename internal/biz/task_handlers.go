package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muudzo/moometrics2/internal/model"
)

// Registered task names.
const (
	TaskGenerateReport = "generate_report_task"
	TaskAIPrediction   = "ai_prediction_task"
)

const (
	reportSteps     = 5
	reportStepDelay = 2 * time.Second
)

// NewTaskDefinitions returns every task the executor can run.
func NewTaskDefinitions(prediction *PredictionUsecase) TaskDefinitions {
	return TaskDefinitions{
		NewReportTask(reportStepDelay),
		NewPredictionTask(prediction),
	}
}

// NewReportTask builds generate_report_task.
// Args: [report_type, user_id]. Reports progress over five steps.
func NewReportTask(stepDelay time.Duration) TaskDefinition {
	return TaskDefinition{
		Name:       TaskGenerateReport,
		MaxRetries: 5,
		Handler: func(ctx context.Context, tc *TaskContext, payload model.TaskPayload) (interface{}, error) {
			if len(payload.Args) < 2 {
				return nil, fmt.Errorf("generate_report_task expects [report_type, user_id], got %d args", len(payload.Args))
			}
			reportType, ok := payload.Args[0].(string)
			if !ok || strings.TrimSpace(reportType) == "" {
				return nil, errors.New("generate_report_task: report_type must be a non-empty string")
			}
			userID := fmt.Sprint(payload.Args[1])

			for step := 1; step <= reportSteps; step++ {
				timer := time.NewTimer(stepDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
				if err := tc.ReportProgress(ctx, step, reportSteps); err != nil {
					return nil, err
				}
			}

			return map[string]string{
				"status":     "completed",
				"report_url": fmt.Sprintf("/exports/report_%s_%d.pdf", userID, time.Now().Unix()),
			}, nil
		},
	}
}

// predictionTaskArgs are the kwargs of ai_prediction_task.
type predictionTaskArgs struct {
	model.PredictionRequest
	UserID string `json:"user_id"`
}

// NewPredictionTask builds ai_prediction_task, which runs a planting prediction off the request path.
func NewPredictionTask(uc *PredictionUsecase) TaskDefinition {
	return TaskDefinition{
		Name:       TaskAIPrediction,
		MaxRetries: 3,
		Handler: func(ctx context.Context, tc *TaskContext, payload model.TaskPayload) (interface{}, error) {
			var args predictionTaskArgs
			if err := payload.BindKwargs(&args); err != nil {
				return nil, fmt.Errorf("ai_prediction_task: %w", err)
			}
			if strings.TrimSpace(args.CropType) == "" {
				return nil, errors.New("ai_prediction_task: crop_type is required")
			}

			if err := tc.ReportProgress(ctx, 0, 1); err != nil {
				return nil, err
			}
			prediction, source := uc.PredictPlanting(ctx, &args.PredictionRequest)
			if err := tc.ReportProgress(ctx, 1, 1); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"status":     "success",
				"source":     source,
				"prediction": prediction,
			}, nil
		},
	}
}
