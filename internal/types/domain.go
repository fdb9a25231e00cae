package types

import "fmt"

// Location is a WGS84 coordinate pair as received from clients.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// Station describes the reference weather station whose data the classifier
// was trained on. Predictions are offered only within RadiusKm of it.
type Station struct {
	Name        string  `json:"name" yaml:"name"`
	Institution string  `json:"institution" yaml:"institution"`
	Latitude    float64 `json:"latitude" yaml:"latitude"`
	Longitude   float64 `json:"longitude" yaml:"longitude"`
	Elevation   int     `json:"elevation" yaml:"elevation"`
	RadiusKm    float64 `json:"valid_radius_km" yaml:"valid_radius_km"`
}

// KnownLocation is an entry in the locations catalog.
type KnownLocation struct {
	Name      string  `json:"name" yaml:"name" validate:"required"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"min=-180,max=180"`
	Elevation int     `json:"elevation" yaml:"elevation"`
	IsStation bool    `json:"is_station,omitempty" yaml:"is_station"`
}

// CurrentWeather is the provider's current-conditions reading. Pointer fields
// are nil when the provider omitted them.
type CurrentWeather struct {
	Source              string   `json:"source"`
	Timestamp           string   `json:"timestamp,omitempty"`
	Temperature         *float64 `json:"temperature"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	Humidity            *float64 `json:"humidity"`
	WindSpeedKmh        *float64 `json:"wind_speed"`
	WindDirection       *float64 `json:"wind_direction"`
	WindGusts           *float64 `json:"wind_gusts,omitempty"`
	CloudCover          *float64 `json:"cloud_cover"`
	Precipitation       *float64 `json:"precipitation,omitempty"`
	PressureMSL         *float64 `json:"pressure_msl,omitempty"`
	Radiation           *float64 `json:"radiation,omitempty"`
	WeatherCode         *int     `json:"weather_code"`
	Timezone            string   `json:"timezone,omitempty"`
	Elevation           *float64 `json:"elevation,omitempty"`
}

// HourlyPoint is a single hour of the provider's forecast.
type HourlyPoint struct {
	Time               string   `json:"time"`
	Temperature        *float64 `json:"temperature"`
	Humidity           *float64 `json:"humidity"`
	DewPoint           *float64 `json:"dew_point"`
	CloudCover         *float64 `json:"cloud_cover"`
	WindSpeedKmh       *float64 `json:"wind_speed"`
	WindDirection      *float64 `json:"wind_direction"`
	ShortwaveRadiation *float64 `json:"shortwave_radiation"`
	SoilTemperature0cm *float64 `json:"soil_temperature_0cm"`
	WeatherCode        *int     `json:"weather_code"`
}

// ForecastSummary aggregates the night hours (18:00-08:00) of a forecast.
type ForecastSummary struct {
	TotalHours          int           `json:"total_hours"`
	NightHoursCount     int           `json:"night_hours_count"`
	MinTemperature      *float64      `json:"min_temperature"`
	MinSoilTemperature  *float64      `json:"min_soil_temperature"`
	FrostRiskHours      []HourlyPoint `json:"frost_risk_hours"`
	FrostRiskHoursCount int           `json:"frost_risk_hours_count"`
}

// FrostRiskData bundles everything the weather collaborator returns for one
// prediction request.
type FrostRiskData struct {
	Current   CurrentWeather  `json:"current"`
	Summary   ForecastSummary `json:"forecast_summary"`
	Hourly    []HourlyPoint   `json:"full_forecast"`
	Elevation *float64        `json:"elevation"`
	Timezone  string          `json:"timezone"`
}

var wmoDescriptions = map[int]string{
	0:  "Cielo despejado",
	1:  "Principalmente despejado",
	2:  "Parcialmente nublado",
	3:  "Nublado",
	45: "Neblina",
	48: "Neblina con escarcha",
	51: "Llovizna ligera",
	53: "Llovizna moderada",
	55: "Llovizna densa",
	56: "Llovizna helada ligera",
	57: "Llovizna helada densa",
	61: "Lluvia ligera",
	63: "Lluvia moderada",
	65: "Lluvia fuerte",
	66: "Lluvia helada ligera",
	67: "Lluvia helada fuerte",
	71: "Nevada ligera",
	73: "Nevada moderada",
	75: "Nevada fuerte",
	77: "Granos de nieve",
	80: "Chubascos ligeros",
	81: "Chubascos moderados",
	82: "Chubascos violentos",
	85: "Chubascos de nieve ligeros",
	86: "Chubascos de nieve fuertes",
	95: "Tormenta eléctrica",
	96: "Tormenta con granizo ligero",
	99: "Tormenta con granizo fuerte",
}

// WeatherDescription returns the Spanish description of a WMO weather code.
func WeatherDescription(code *int) string {
	if code == nil {
		return "Desconocido"
	}
	if d, ok := wmoDescriptions[*code]; ok {
		return d
	}
	return fmt.Sprintf("Código desconocido: %d", *code)
}

// FrostFavorable reports whether the sky condition favours radiative frost
// (clear or mostly clear).
func FrostFavorable(code *int) bool {
	return code != nil && (*code == 0 || *code == 1)
}

// Float returns a pointer to v. Used to build partial readings.
func Float(v float64) *float64 { return &v }
