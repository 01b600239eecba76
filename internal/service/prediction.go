package service

import (
	"context"
	"strings"

	v1 "github.com/muudzo/moometrics2/api/v1"
	"github.com/muudzo/moometrics2/internal/biz"
	"github.com/muudzo/moometrics2/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// PredictionService implements the PredictionService HTTP interface.
type PredictionService struct {
	uc     *biz.PredictionUsecase
	logger *log.Helper
}

// NewPredictionService creates a new PredictionService instance.
func NewPredictionService(uc *biz.PredictionUsecase, logger log.Logger) *PredictionService {
	return &PredictionService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// PredictPlanting returns planting advice, generic advice when the model is unavailable.
func (s *PredictionService) PredictPlanting(ctx context.Context, req *v1.PlantingPredictionRequest) (*v1.PlantingPredictionReply, error) {
	if strings.TrimSpace(req.CropType) == "" {
		return nil, errors.BadRequest("MISSING_CROP_TYPE", "crop_type is required")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return nil, errors.BadRequest("MISSING_COORDINATES", "latitude and longitude are required")
	}
	if err := validateCoordinates(*req.Latitude, *req.Longitude); err != nil {
		return nil, err
	}

	prediction, src := s.uc.PredictPlanting(ctx, &model.PredictionRequest{
		CropType:  strings.TrimSpace(req.CropType),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		SoilType:  req.SoilType,
		Season:    req.CurrentSeason,
	})
	s.logger.Debugw("PredictPlanting served", "crop_type", req.CropType, "source", string(src))
	setReplyHeader(ctx, DataSourceHeader, string(src))

	return &v1.PlantingPredictionReply{
		RecommendedPlantingDate: prediction.RecommendedPlantingDate,
		ExpectedHarvestDate:     prediction.ExpectedHarvestDate,
		Confidence:              prediction.Confidence,
		Recommendations:         prediction.Recommendations,
	}, nil
}
