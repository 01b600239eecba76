package model

// PredictionRequest asks for a planting recommendation for one crop and location.
type PredictionRequest struct {
	CropType  string  `json:"crop_type"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	SoilType  string  `json:"soil_type,omitempty"`
	Season    string  `json:"season,omitempty"`
}

// PlantingPrediction is the planting recommendation returned to the farmer.
type PlantingPrediction struct {
	RecommendedPlantingDate string   `json:"recommended_planting_date"`
	ExpectedHarvestDate     string   `json:"expected_harvest_date"`
	Confidence              float64  `json:"confidence"`
	Recommendations         []string `json:"recommendations"`
}

// CacheSchemaVersion is bumped whenever the cached JSON shape of PlantingPrediction changes.
func (*PlantingPrediction) CacheSchemaVersion() int { return 1 }

// DateLayout is the ISO date format used by planting and harvest dates.
const DateLayout = "2006-01-02"
