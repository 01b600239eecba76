package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/internal/model"
	"github.com/muudzo/moometrics2/pkg/metrics"
	"github.com/muudzo/moometrics2/pkg/openai"

	"github.com/go-kratos/kratos/v2/log"
)

// PredictionProvider asks the model for planting advice.
type PredictionProvider interface {
	PlantingAdvice(ctx context.Context, q openai.PlantingQuery) (*openai.PlantingAdvice, error)
}

// NewPredictionProvider creates the OpenAI planting advisor.
func NewPredictionProvider(c *conf.Prediction) (PredictionProvider, error) {
	advisor, err := openai.NewAdvisor(openai.Config{
		APIKey:   c.APIKey,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		Timeout:  c.Timeout,
		ProxyURL: c.ProxyURL,
	})
	if err != nil {
		return nil, err
	}
	return advisor, nil
}

const (
	fallbackPlantingLead = 14 * 24 * time.Hour
	fallbackGrowingTime  = 120 * 24 * time.Hour
	fallbackConfidence   = 0.75
)

// PredictionUsecase serves planting predictions through the resilience layer.
type PredictionUsecase struct {
	provider PredictionProvider
	caller   *ResilientCaller[model.PlantingPrediction]
	now      func() time.Time
}

// NewPredictionUsecase creates a PredictionUsecase.
func NewPredictionUsecase(
	c *conf.Prediction,
	provider PredictionProvider,
	cache *CacheGateway,
	breakers *BreakerRegistry,
	m *metrics.Metrics,
	logger log.Logger,
) *PredictionUsecase {
	return &PredictionUsecase{
		provider: provider,
		caller: NewResilientCaller[model.PlantingPrediction](
			DependencyPrediction, cache, breakers.MustGet(DependencyPrediction),
			c.CacheTTL, c.Timeout, m, logger,
		),
		now: time.Now,
	}
}

// PredictionCacheKey builds the cache key of a request.
func PredictionCacheKey(req *model.PredictionRequest) string {
	return data.BuildCacheKey(data.CacheKeyPrediction,
		data.NormalizeKeyPart(req.CropType),
		data.FormatCoordinate(req.Latitude),
		data.FormatCoordinate(req.Longitude),
		data.NormalizeKeyPart(req.SoilType),
		data.NormalizeKeyPart(req.Season),
	)
}

// PredictPlanting returns a planting prediction. It always returns one.
func (uc *PredictionUsecase) PredictPlanting(ctx context.Context, req *model.PredictionRequest) (*model.PlantingPrediction, Source) {
	prediction, src := uc.caller.Fetch(ctx, PredictionCacheKey(req),
		func(ctx context.Context) (model.PlantingPrediction, error) {
			advice, err := uc.provider.PlantingAdvice(ctx, openai.PlantingQuery{
				CropType:  req.CropType,
				Latitude:  req.Latitude,
				Longitude: req.Longitude,
				SoilType:  req.SoilType,
				Season:    req.Season,
			})
			if err != nil {
				return model.PlantingPrediction{}, predictionError(err)
			}
			return model.PlantingPrediction{
				RecommendedPlantingDate: advice.PlantingDate,
				ExpectedHarvestDate:     advice.HarvestDate,
				Confidence:              advice.Confidence,
				Recommendations:         advice.Recommendations,
			}, nil
		},
		func(string) model.PlantingPrediction {
			return FallbackPrediction(req.CropType, uc.now())
		},
	)
	return &prediction, src
}

func predictionError(err error) error {
	if errors.Is(err, openai.ErrMissingAPIKey) {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrDependencyNotConfigured)
	}
	return &DependencyCallError{
		Dependency: DependencyPrediction,
		StatusCode: openai.StatusCode(err),
		Err:        err,
	}
}

// FallbackPrediction is the generic advice served when the model is unavailable.
func FallbackPrediction(cropType string, now time.Time) model.PlantingPrediction {
	planting := now.Add(fallbackPlantingLead)
	harvest := planting.Add(fallbackGrowingTime)

	return model.PlantingPrediction{
		RecommendedPlantingDate: planting.Format(model.DateLayout),
		ExpectedHarvestDate:     harvest.Format(model.DateLayout),
		Confidence:              fallbackConfidence,
		Recommendations: []string{
			fmt.Sprintf("Plant %s in well-drained soil with good sun exposure", cropType),
			"Ensure soil pH is between 6.0 and 7.0 for optimal growth",
			"Water regularly, especially during germination and flowering stages",
			"Monitor for common pests and diseases specific to your region",
			"Consider crop rotation to maintain soil health",
		},
	}
}
