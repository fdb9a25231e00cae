package prediction

import (
	"math"
	"time"

	"wayrafrost/internal/external"
	"wayrafrost/internal/risk"
	"wayrafrost/internal/types"
)

// Result is the response body of a prediction request. Out-of-coverage
// results carry only the validation block; everything else is omitted.
type Result struct {
	PredictionAvailable   bool                   `json:"prediction_available"`
	Validation            Validation             `json:"validation"`
	RequestedLocation     types.Location         `json:"requested_location"`
	Location              string                 `json:"location,omitempty"`
	DistanceFromStationKm float64                `json:"distance_from_station_km"`
	ReferenceStation      types.Station          `json:"reference_station"`
	Suggestion            string                 `json:"suggestion,omitempty"`
	Message               string                 `json:"message,omitempty"`
	Reason                string                 `json:"reason,omitempty"`
	Timestamp             time.Time              `json:"timestamp"`
	CurrentConditions     *Conditions            `json:"current_conditions,omitempty"`
	MLPrediction          *MLPrediction          `json:"ml_prediction,omitempty"`
	Advisory              *external.Advice       `json:"advisory,omitempty"`
	Risk                  *RiskSummary           `json:"risk,omitempty"`
	ForecastSummary       *types.ForecastSummary `json:"forecast_summary,omitempty"`
	HourlyForecast        []types.HourlyPoint    `json:"hourly_forecast,omitempty"`
	ModelInfo             *ModelInfo             `json:"model_info,omitempty"`
	DataSources           []string               `json:"data_sources,omitempty"`
}

// Validation mirrors the geofence decision with the distance rounded for
// display.
type Validation struct {
	IsValid    bool    `json:"is_valid"`
	DistanceKm float64 `json:"distance_km"`
	Message    string  `json:"message"`
}

// Conditions is the current reading as shown to users.
type Conditions struct {
	Temperature         *float64 `json:"temperature"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	Humidity            *float64 `json:"humidity"`
	WindSpeed           *float64 `json:"wind_speed"`
	WindDirection       *float64 `json:"wind_direction"`
	CloudCover          *float64 `json:"cloud_cover"`
	Radiation           *float64 `json:"radiation"`
	WeatherCode         *int     `json:"weather_code"`
	WeatherDescription  string   `json:"weather_description"`
	FrostFavorable      bool     `json:"frost_favorable_sky"`
}

// MLPrediction is the classifier output.
type MLPrediction struct {
	Class            risk.Class `json:"class"`
	ClassName        string     `json:"class_name"`
	Probabilities    []float64  `json:"probabilities"`
	Confidence       float64    `json:"confidence"`
	FrostProbability float64    `json:"frost_probability"`
}

// RiskSummary is the reconciled decision with its display attributes.
type RiskSummary struct {
	Class     risk.Class `json:"class"`
	ClassName string     `json:"class_name"`
	Level     risk.Level `json:"level"`
	Color     string     `json:"color"`
	State     risk.State `json:"state"`
	Primary   risk.Class `json:"primary"`
	Advisory  *int       `json:"advisory"`
}

// ModelInfo describes the classifier input contract.
type ModelInfo struct {
	Version            string   `json:"version"`
	FeaturesUsed       []string `json:"features_used"`
	HasLagFeatures     bool     `json:"has_lag_features"`
	LagHours           []int    `json:"lag_hours"`
	GeographicCoverage string   `json:"geographic_coverage"`
	HistoryDepth       int      `json:"history_depth"`
}

func conditionsOf(c types.CurrentWeather) *Conditions {
	return &Conditions{
		Temperature:         c.Temperature,
		ApparentTemperature: c.ApparentTemperature,
		Humidity:            c.Humidity,
		WindSpeed:           c.WindSpeedKmh,
		WindDirection:       c.WindDirection,
		CloudCover:          c.CloudCover,
		Radiation:           c.Radiation,
		WeatherCode:         c.WeatherCode,
		WeatherDescription:  types.WeatherDescription(c.WeatherCode),
		FrostFavorable:      types.FrostFavorable(c.WeatherCode),
	}
}

func mlPredictionOf(p *external.Prediction) *MLPrediction {
	return &MLPrediction{
		Class:            p.Class,
		ClassName:        p.Class.Name(),
		Probabilities:    p.Probabilities,
		Confidence:       p.Confidence(),
		FrostProbability: p.FrostProbability(),
	}
}

func riskSummaryOf(d risk.Decision) *RiskSummary {
	return &RiskSummary{
		Class:     d.Class,
		ClassName: d.Class.Name(),
		Level:     d.Class.Level(),
		Color:     d.Class.Color(),
		State:     d.State,
		Primary:   d.Primary,
		Advisory:  d.Advisory,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
