package biz

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/internal/model"
	"github.com/muudzo/moometrics2/pkg/metrics"
	"github.com/muudzo/moometrics2/pkg/openweather"

	"github.com/go-kratos/kratos/v2/log"
)

// WeatherProvider fetches current weather from the upstream API.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) (*openweather.Observation, error)
}

// NewWeatherProvider creates the OpenWeatherMap client.
func NewWeatherProvider(c *conf.Weather) (WeatherProvider, error) {
	client, err := openweather.NewClient(openweather.Config{
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Timeout:   c.Timeout,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
		ProxyURL:  c.ProxyURL,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// WeatherUsecase serves current weather through the resilience layer.
type WeatherUsecase struct {
	provider WeatherProvider
	caller   *ResilientCaller[model.WeatherReport]
}

// NewWeatherUsecase creates a WeatherUsecase.
func NewWeatherUsecase(
	c *conf.Weather,
	provider WeatherProvider,
	cache *CacheGateway,
	breakers *BreakerRegistry,
	m *metrics.Metrics,
	logger log.Logger,
) *WeatherUsecase {
	return &WeatherUsecase{
		provider: provider,
		caller: NewResilientCaller[model.WeatherReport](
			DependencyWeather, cache, breakers.MustGet(DependencyWeather),
			c.CacheTTL, c.Timeout, m, logger,
		),
	}
}

// GetWeather returns the weather at a coordinate. It always returns a report.
func (uc *WeatherUsecase) GetWeather(ctx context.Context, lat, lon float64) (*model.WeatherReport, Source) {
	key := data.BuildCacheKey(data.CacheKeyWeather, data.FormatCoordinate(lat), data.FormatCoordinate(lon))

	report, src := uc.caller.Fetch(ctx, key,
		func(ctx context.Context) (model.WeatherReport, error) {
			obs, err := uc.provider.Current(ctx, lat, lon)
			if err != nil {
				return model.WeatherReport{}, weatherError(err)
			}
			return model.WeatherReport{
				Temperature: round1(obs.Temperature),
				Condition:   obs.Condition,
				Location:    obs.Location,
				Humidity:    obs.Humidity,
				WindSpeed:   round1(obs.WindSpeed),
				Icon:        obs.Icon,
			}, nil
		},
		FallbackWeather,
	)
	return &report, src
}

func weatherError(err error) error {
	if errors.Is(err, openweather.ErrMissingAPIKey) {
		return fmt.Errorf("%w: OPENWEATHER_API_KEY", ErrDependencyNotConfigured)
	}
	callErr := &DependencyCallError{Dependency: DependencyWeather, Err: err}
	var apiErr *openweather.APIError
	if errors.As(err, &apiErr) {
		callErr.StatusCode = apiErr.StatusCode
	}
	return callErr
}

// FallbackWeather is the placeholder report served when real data is unavailable.
func FallbackWeather(reason string) model.WeatherReport {
	return model.WeatherReport{
		Temperature: 22.0,
		Condition:   "Sunny",
		Location:    fmt.Sprintf("Mock Data (%s)", reason),
		Humidity:    45,
		WindSpeed:   12.0,
		Icon:        "01d",
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
