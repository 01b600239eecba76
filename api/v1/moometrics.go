// Package v1 defines the MooMetrics HTTP API: request and reply messages,
// the service interfaces and their route registration.
package v1

import (
	"encoding/json"
	"time"
)

// GetWeatherRequest is GET /api/weather?lat=&lon=.
type GetWeatherRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// WeatherReply is the current weather, real or placeholder.
type WeatherReply struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Location    string  `json:"location"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Icon        string  `json:"icon"`
}

// PlantingPredictionRequest is the body of POST /api/predictions/planting.
type PlantingPredictionRequest struct {
	CropType      string   `json:"crop_type"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	SoilType      string   `json:"soil_type,omitempty"`
	CurrentSeason string   `json:"current_season,omitempty"`
}

// PlantingPredictionReply is a planting and harvest recommendation.
type PlantingPredictionReply struct {
	RecommendedPlantingDate string   `json:"recommended_planting_date"`
	ExpectedHarvestDate     string   `json:"expected_harvest_date"`
	Confidence              float64  `json:"confidence"`
	Recommendations         []string `json:"recommendations"`
}

// SubmitReportRequest is POST /api/v1/tasks/mock-report?report_type=.
type SubmitReportRequest struct {
	ReportType string `json:"report_type"`
}

// SubmitPredictionRequest is POST /api/v1/tasks/mock-prediction?crop_type=.
type SubmitPredictionRequest struct {
	CropType string `json:"crop_type"`
}

// SubmitTaskReply acknowledges a queued task.
type SubmitTaskReply struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// TaskRequest addresses one task by id.
type TaskRequest struct {
	ID string `json:"id"`
}

// TaskProgress is the {current, total} progress of a running task.
type TaskProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// TaskReply is the status of a task.
type TaskReply struct {
	TaskID     string          `json:"task_id"`
	Name       string          `json:"name"`
	State      string          `json:"state"`
	Progress   *TaskProgress   `json:"progress,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Attempts   int             `json:"attempts"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	Revoked    bool            `json:"revoked"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
}

// ListDeadLettersRequest is GET /api/v1/dead-letters?limit=.
type ListDeadLettersRequest struct {
	Limit int `json:"limit"`
}

// DeadLetter is a task that failed permanently.
type DeadLetter struct {
	ID         int64           `json:"id"`
	TaskID     string          `json:"task_id"`
	TaskName   string          `json:"task_name"`
	Payload    json.RawMessage `json:"payload"`
	Exception  string          `json:"exception"`
	RetryCount int             `json:"retry_count"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// ListDeadLettersReply lists dead letters, newest first.
type ListDeadLettersReply struct {
	DeadLetters []*DeadLetter `json:"dead_letters"`
}

// Breaker is the state of one circuit breaker.
type Breaker struct {
	Name             string     `json:"name"`
	State            string     `json:"state"`
	FailuresInWindow int        `json:"failures_in_window"`
	FailureThreshold int        `json:"failure_threshold"`
	RecoveryTimeout  float64    `json:"recovery_timeout_seconds"`
	TimeWindow       float64    `json:"time_window_seconds"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	TrialInFlight    bool       `json:"trial_in_flight"`
}

// ListBreakersReply lists every circuit breaker.
type ListBreakersReply struct {
	Breakers []*Breaker `json:"breakers"`
}

// HealthRequest is GET /health.
type HealthRequest struct{}

// HealthReply reports process liveness and the state of its backing stores.
type HealthReply struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
