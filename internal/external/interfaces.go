package external

import (
	"context"

	"wayrafrost/internal/types"
)

// ---------------------------------------------------------------------------
// Weather Integration (Open-Meteo)
// ---------------------------------------------------------------------------

// WeatherProvider supplies observed conditions and the forecast for a
// coordinate.
type WeatherProvider interface {
	// Current returns the latest reading at lat/lon.
	Current(ctx context.Context, lat, lon float64) (*types.CurrentWeather, error)

	// FrostRiskData returns the reading, the hourly forecast and its
	// night-hour summary.
	FrostRiskData(ctx context.Context, lat, lon float64) (*types.FrostRiskData, error)
}

// ---------------------------------------------------------------------------
// Classifier Integration (model server)
// ---------------------------------------------------------------------------

// Classifier is the frost classification model.
type Classifier interface {
	// Features returns the declared feature order, queried once at startup.
	Features(ctx context.Context) ([]string, error)

	// Predict classifies a vector ordered by Features.
	Predict(ctx context.Context, values []float64) (*Prediction, error)
}

// ---------------------------------------------------------------------------
// Advisory Integration (Gemini / rules)
// ---------------------------------------------------------------------------

// Advisor produces a secondary risk assessment.
type Advisor interface {
	Advise(ctx context.Context, in AdvisoryInput) (*Advice, error)
	Source() string
}

var (
	_ WeatherProvider = (*OpenMeteoClient)(nil)
	_ Classifier      = (*ClassifierClient)(nil)
	_ Advisor         = (*GeminiAdvisor)(nil)
	_ Advisor         = RuleAdvisor{}
	_ types.SMSSender = (*TwilioSender)(nil)
	_ types.SMSSender = (*StubSMSSender)(nil)
)
