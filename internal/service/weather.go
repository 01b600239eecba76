package service

import (
	"context"
	"fmt"

	v1 "github.com/muudzo/moometrics2/api/v1"
	"github.com/muudzo/moometrics2/internal/biz"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// WeatherService implements the WeatherService HTTP interface.
type WeatherService struct {
	uc     *biz.WeatherUsecase
	logger *log.Helper
}

// NewWeatherService creates a new WeatherService instance.
func NewWeatherService(uc *biz.WeatherUsecase, logger log.Logger) *WeatherService {
	return &WeatherService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// GetWeather returns the current weather. Upstream problems never fail the request.
func (s *WeatherService) GetWeather(ctx context.Context, req *v1.GetWeatherRequest) (*v1.WeatherReply, error) {
	if req.Lat == nil || req.Lon == nil {
		return nil, errors.BadRequest("MISSING_COORDINATES", "lat and lon query parameters are required")
	}
	if err := validateCoordinates(*req.Lat, *req.Lon); err != nil {
		return nil, err
	}

	report, src := s.uc.GetWeather(ctx, *req.Lat, *req.Lon)
	s.logger.Debugw("GetWeather served", "lat", *req.Lat, "lon", *req.Lon, "source", string(src))
	setReplyHeader(ctx, DataSourceHeader, string(src))

	return &v1.WeatherReply{
		Temperature: report.Temperature,
		Condition:   report.Condition,
		Location:    report.Location,
		Humidity:    report.Humidity,
		WindSpeed:   report.WindSpeed,
		Icon:        report.Icon,
	}, nil
}

func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return errors.BadRequest("INVALID_COORDINATES", fmt.Sprintf("latitude %v out of range [-90, 90]", lat))
	}
	if lon < -180 || lon > 180 {
		return errors.BadRequest("INVALID_COORDINATES", fmt.Sprintf("longitude %v out of range [-180, 180]", lon))
	}
	return nil
}
