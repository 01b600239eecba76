package biz

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/muudzo/moometrics2/internal/model"
	"github.com/muudzo/moometrics2/pkg/openai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTask(t *testing.T) {
	f := newExecutorFixture(t, NewReportTask(time.Millisecond))

	id, err := f.exec.Submit(context.Background(), TaskGenerateReport, model.TaskPayload{
		Args: []interface{}{"Annual Livestock Summary", 42},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, f.status(t, id).MaxRetries)

	f.runNext(t)

	rec := f.status(t, id)
	require.Equal(t, model.TaskSuccess, rec.State)
	assert.Equal(t, &model.TaskProgressInfo{Current: 5, Total: 5}, rec.Progress)

	var result map[string]string
	require.NoError(t, json.Unmarshal(rec.Result, &result))
	assert.Equal(t, "completed", result["status"])
	assert.Regexp(t, `^/exports/report_42_\d+\.pdf$`, result["report_url"])
}

func TestReportTask_BadArgs(t *testing.T) {
	f := newExecutorFixture(t, NewReportTask(time.Millisecond))

	for _, args := range [][]interface{}{nil, {"only type"}, {"", "7"}, {3, "7"}} {
		id, err := f.exec.Submit(context.Background(), TaskGenerateReport, model.TaskPayload{Args: args})
		require.NoError(t, err)
		f.runNext(t)

		rec := f.status(t, id)
		assert.Equal(t, model.TaskRetry, rec.State, "args %v", args)
		assert.Contains(t, rec.Error, "generate_report_task")
	}
}

func TestPredictionTask(t *testing.T) {
	provider := &fakePredictionProvider{advice: &openai.PlantingAdvice{
		PlantingDate:    "2026-11-10",
		HarvestDate:     "2027-03-20",
		Confidence:      0.9,
		Recommendations: []string{"Use certified seed"},
	}}
	uc := newTestPredictionUsecase(t, provider, time.Now())
	f := newExecutorFixture(t, NewTaskDefinitions(uc)...)

	id, err := f.exec.Submit(context.Background(), TaskAIPrediction, model.TaskPayload{
		Kwargs: map[string]interface{}{
			"crop_type": "Maize",
			"latitude":  -17.82,
			"longitude": 31.05,
			"user_id":   "farmer-7",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, f.status(t, id).MaxRetries)

	f.runNext(t)

	rec := f.status(t, id)
	require.Equal(t, model.TaskSuccess, rec.State)
	assert.Equal(t, &model.TaskProgressInfo{Current: 1, Total: 1}, rec.Progress)
	assert.JSONEq(t, `{
		"status": "success",
		"source": "live",
		"prediction": {
			"recommended_planting_date": "2026-11-10",
			"expected_harvest_date": "2027-03-20",
			"confidence": 0.9,
			"recommendations": ["Use certified seed"]
		}
	}`, string(rec.Result))
	assert.Equal(t, -17.82, provider.last.Latitude)
}

func TestPredictionTask_FallbackStillSucceeds(t *testing.T) {
	uc := newTestPredictionUsecase(t, &fakePredictionProvider{err: openai.ErrMissingAPIKey}, time.Now())
	f := newExecutorFixture(t, NewPredictionTask(uc))

	id, err := f.exec.Submit(context.Background(), TaskAIPrediction, model.TaskPayload{
		Kwargs: map[string]interface{}{"crop_type": "Beans"},
	})
	require.NoError(t, err)
	f.runNext(t)

	rec := f.status(t, id)
	require.Equal(t, model.TaskSuccess, rec.State)

	var result struct {
		Source     Source                   `json:"source"`
		Prediction model.PlantingPrediction `json:"prediction"`
	}
	require.NoError(t, json.Unmarshal(rec.Result, &result))
	assert.Equal(t, SourceFallback, result.Source)
	assert.Equal(t, 0.75, result.Prediction.Confidence)
}

func TestPredictionTask_MissingCrop(t *testing.T) {
	uc := newTestPredictionUsecase(t, &fakePredictionProvider{err: openai.ErrMissingAPIKey}, time.Now())
	f := newExecutorFixture(t, NewPredictionTask(uc))

	id, err := f.exec.Submit(context.Background(), TaskAIPrediction, model.TaskPayload{})
	require.NoError(t, err)
	f.runNext(t)

	rec := f.status(t, id)
	assert.Equal(t, model.TaskRetry, rec.State)
	assert.Contains(t, rec.Error, "crop_type is required")
}
