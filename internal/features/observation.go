package features

import (
	"fmt"
	"math"
	"time"

	"wayrafrost/internal/history"
	"wayrafrost/internal/types"
)

// kmhPerMs converts provider wind speed (km/h) to m/s.
const kmhPerMs = 3.6

// Defaults are the neutral values substituted for fields the weather
// provider omitted.
type Defaults struct {
	Humidity      float64 // %
	Irradiance    float64 // W/m²
	WindSpeed     float64 // m/s
	WindDirection float64 // degrees
}

// DefaultNeutral returns the deployed neutral defaults.
func DefaultNeutral() Defaults {
	return Defaults{
		Humidity:      50,
		Irradiance:    300,
		WindSpeed:     0,
		WindDirection: 180,
	}
}

// FromReading converts a provider reading taken at ts into an Observation.
//
// Absent fields take the neutral default. A present field that cannot be
// used (non-finite or physically impossible), or a reading with no base
// variable at all, fails with validation_missing_feature.
func FromReading(r types.CurrentWeather, ts time.Time, d Defaults) (history.Observation, error) {
	if r.Humidity == nil && r.Radiation == nil && r.WindSpeedKmh == nil && r.WindDirection == nil {
		return history.Observation{}, missingFeature("reading carries no base variable", "HR", "radinf", "vel", "dir")
	}

	humidity := d.Humidity
	if r.Humidity != nil {
		if !usable(*r.Humidity) || *r.Humidity < 0 || *r.Humidity > 100 {
			return history.Observation{}, missingFeature(fmt.Sprintf("humidity %v unusable", *r.Humidity), "HR")
		}
		humidity = *r.Humidity
	}

	irradiance := d.Irradiance
	if r.Radiation != nil {
		if !usable(*r.Radiation) || *r.Radiation < 0 {
			return history.Observation{}, missingFeature(fmt.Sprintf("irradiance %v unusable", *r.Radiation), "radinf")
		}
		irradiance = *r.Radiation
	}

	wind := d.WindSpeed
	if r.WindSpeedKmh != nil {
		if !usable(*r.WindSpeedKmh) || *r.WindSpeedKmh < 0 {
			return history.Observation{}, missingFeature(fmt.Sprintf("wind speed %v unusable", *r.WindSpeedKmh), "vel")
		}
		wind = *r.WindSpeedKmh / kmhPerMs
	}

	direction := d.WindDirection
	if r.WindDirection != nil {
		if !usable(*r.WindDirection) {
			return history.Observation{}, missingFeature(fmt.Sprintf("wind direction %v unusable", *r.WindDirection), "dir_sin", "dir_cos")
		}
		direction = *r.WindDirection
	}
	rad := direction * math.Pi / 180

	return history.Observation{
		Timestamp:  ts,
		Humidity:   humidity,
		Irradiance: irradiance,
		WindSpeed:  wind,
		DirSin:     math.Sin(rad),
		DirCos:     math.Cos(rad),
	}, nil
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func missingFeature(msg string, vars ...string) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingFeature,
		msg,
		nil,
		map[string]any{"variables": vars},
	)
}
