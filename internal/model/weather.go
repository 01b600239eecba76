package model

// WeatherReport is the current weather at a farm location.
type WeatherReport struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Location    string  `json:"location"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Icon        string  `json:"icon"`
}

// CacheSchemaVersion is bumped whenever the cached JSON shape of WeatherReport changes.
func (*WeatherReport) CacheSchemaVersion() int { return 1 }
