package alerts

import (
	"fmt"
	"strings"
	"time"

	"wayrafrost/internal/risk"
	"wayrafrost/internal/types"
)

// PhoneRules describes the accepted national number format.
type PhoneRules struct {
	CountryPrefix string
	Digits        int
}

// DefaultPhoneRules accepts 9-digit Peruvian mobile numbers.
func DefaultPhoneRules() PhoneRules {
	return PhoneRules{CountryPrefix: "+51", Digits: 9}
}

// NormalizePhone keeps only the digits of raw and returns them with the
// country prefix. Input that already carries the prefix is accepted.
func NormalizePhone(raw string, rules PhoneRules) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	prefix := strings.TrimPrefix(rules.CountryPrefix, "+")
	if strings.HasPrefix(strings.TrimSpace(raw), "+") && len(digits) == rules.Digits+len(prefix) {
		digits = strings.TrimPrefix(digits, prefix)
	}

	if len(digits) != rules.Digits {
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPhone,
			fmt.Sprintf("Número inválido. Debe tener %d dígitos (ej: 987654321)", rules.Digits),
			nil,
			map[string]any{"digits": len(digits)},
		)
	}
	return rules.CountryPrefix + digits, nil
}

// PredictionData is the subset of a prediction result that alerts are built
// from. Clients echo the prediction response back, so field names follow it.
type PredictionData struct {
	PredictionAvailable   bool                `json:"prediction_available"`
	RequestedLocation     *types.Location     `json:"requested_location,omitempty"`
	DistanceFromStationKm float64             `json:"distance_from_station_km"`
	Timestamp             *time.Time          `json:"timestamp,omitempty"`
	CurrentConditions     *conditionsData     `json:"current_conditions,omitempty"`
	Risk                  *classData          `json:"risk,omitempty"`
	MLPrediction          *classData          `json:"ml_prediction,omitempty"`
	HourlyForecast        []types.HourlyPoint `json:"hourly_forecast,omitempty"`
}

type conditionsData struct {
	Temperature *float64 `json:"temperature"`
}

type classData struct {
	Class     *int   `json:"class"`
	ClassName string `json:"class_name"`
}

func (c *classData) resolve() (risk.Class, bool) {
	if c == nil {
		return risk.NoRisk, false
	}
	if c.Class != nil {
		if cls, err := risk.ParseClass(*c.Class); err == nil {
			return cls, true
		}
	}
	return risk.ParseName(c.ClassName)
}

// Temperature returns the current temperature, if present.
func (d PredictionData) Temperature() *float64 {
	if d.CurrentConditions == nil {
		return nil
	}
	return d.CurrentConditions.Temperature
}

// PayloadFromResult builds a compactor payload. The reconciled risk class is
// preferred over the classifier's own class. An available prediction without
// any class is rejected.
func PayloadFromResult(d PredictionData) (Payload, error) {
	p := Payload{
		Available:   d.PredictionAvailable,
		Temperature: d.Temperature(),
		DistanceKm:  d.DistanceFromStationKm,
	}
	if d.Timestamp != nil {
		p.Timestamp = *d.Timestamp
	}

	if len(d.HourlyForecast) > 0 {
		p.Forecast = make([]*float64, len(d.HourlyForecast))
		for i, h := range d.HourlyForecast {
			p.Forecast[i] = h.Temperature
		}
	}

	if !p.Available {
		return p, nil
	}

	cls, ok := d.Risk.resolve()
	if !ok {
		cls, ok = d.MLPrediction.resolve()
	}
	if !ok {
		return Payload{}, types.NewAppError(
			types.ErrCodeValidationInvalidPrediction,
			"prediction data carries no risk class",
			nil,
		)
	}
	p.Class = cls
	return p, nil
}
