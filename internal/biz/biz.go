// Package biz contains business logic layer implementations.
// This layer holds the resilience rules: breakers, cached dependency calls and background tasks.
package biz

import (
	"github.com/muudzo/moometrics2/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBreakerRegistry,
	NewCacheGateway,
	NewWeatherProvider,
	NewWeatherUsecase,
	NewPredictionProvider,
	NewPredictionUsecase,
	NewTaskDefinitions,
	NewDeadLetterHook,
	NewDeadLetterUsecase,
	NewTaskExecutor,
	NewHealthUsecase,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(TaskQueue), new(*data.TaskQueueRepo)),
	wire.Bind(new(DeadLetterStore), new(*data.DeadLetterRepo)),
	wire.Bind(new(HealthProbe), new(*data.HealthRepo)),
)
