// Package prediction runs the frost-risk decision pipeline: geofence, weather
// fetch, lag synthesis over the per-location history, classification,
// advisory and reconciliation.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"wayrafrost/internal/external"
	"wayrafrost/internal/features"
	"wayrafrost/internal/geofence"
	"wayrafrost/internal/history"
	"wayrafrost/internal/risk"
	"wayrafrost/internal/types"
)

// hourlyWindow is the number of forecast hours echoed in a result.
const hourlyWindow = 24

// Prediction outcomes reported to Metrics.
const (
	OutcomeAvailable     = "available"
	OutcomeOutOfCoverage = "out_of_coverage"
	OutcomeError         = "error"
)

// Metrics records pipeline outcomes.
type Metrics interface {
	RecordPrediction(outcome string, elapsed time.Duration)
	RecordDecision(class, state string)
}

// Request is one prediction request. LocationName is optional.
type Request struct {
	Lat          float64
	Lon          float64
	LocationName string
}

// Config wires a Pipeline. Metrics, Clock and Logger are optional. A nil
// Defaults selects features.DefaultNeutral.
type Config struct {
	Weather      external.WeatherProvider
	Classifier   external.Classifier
	Advisor      external.Advisor
	History      *history.Store
	Geofence     *geofence.Validator
	Horizons     []int
	Defaults     *features.Defaults
	ModelVersion string
	Metrics      Metrics
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Pipeline is safe for concurrent use once BindSchema has succeeded.
type Pipeline struct {
	weather    external.WeatherProvider
	classifier external.Classifier
	advisor    external.Advisor
	history    *history.Store
	geofence   *geofence.Validator
	horizons   []int
	defaults   features.Defaults
	version    string
	metrics    Metrics
	clock      clockwork.Clock
	logger     *slog.Logger

	schema atomic.Pointer[features.Schema]
}

// NewPipeline creates a Pipeline. BindSchema must be called before Predict.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = features.DefaultHorizons
	}
	defaults := features.DefaultNeutral()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}
	return &Pipeline{
		weather:    cfg.Weather,
		classifier: cfg.Classifier,
		advisor:    cfg.Advisor,
		history:    cfg.History,
		geofence:   cfg.Geofence,
		horizons:   cfg.Horizons,
		defaults:   defaults,
		version:    cfg.ModelVersion,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// BindSchema fetches the classifier's declared feature order and checks it
// against the synthesized feature set. Call once at startup.
func (p *Pipeline) BindSchema(ctx context.Context) error {
	declared, err := p.classifier.Features(ctx)
	if err != nil {
		return err
	}
	schema, err := features.BindSchema(declared, p.horizons)
	if err != nil {
		return err
	}
	p.schema.Store(schema)
	p.logger.InfoContext(ctx, "feature schema bound", "features", schema.Len(), "horizons", p.horizons)
	return nil
}

// Bound reports whether the classifier schema has been bound.
func (p *Pipeline) Bound() bool { return p.schema.Load() != nil }

// ModelVersion returns the configured model version.
func (p *Pipeline) ModelVersion() string { return p.version }

// Predict runs the pipeline for req. A location outside the station's
// coverage yields a result with PredictionAvailable false and a nil error.
func (p *Pipeline) Predict(ctx context.Context, req Request) (*Result, error) {
	start := p.clock.Now()
	res, err := p.predict(ctx, req)

	outcome := OutcomeAvailable
	switch {
	case err != nil:
		outcome = OutcomeError
	case !res.PredictionAvailable:
		outcome = OutcomeOutOfCoverage
	}
	if p.metrics != nil {
		p.metrics.RecordPrediction(outcome, p.clock.Since(start))
	}
	return res, err
}

func (p *Pipeline) predict(ctx context.Context, req Request) (*Result, error) {
	schema := p.schema.Load()
	if schema == nil {
		return nil, types.NewAppError(types.ErrCodeUnavailableClassifier,
			"El modelo no está disponible. Intente nuevamente más tarde.", nil)
	}

	station := p.geofence.Station()
	check := p.geofence.Validate(req.Lat, req.Lon)
	res := &Result{
		Validation: Validation{
			IsValid:    check.Valid,
			DistanceKm: round2(check.DistanceKm),
			Message:    check.Message,
		},
		RequestedLocation:     types.Location{Latitude: req.Lat, Longitude: req.Lon},
		Location:              req.LocationName,
		DistanceFromStationKm: round2(check.DistanceKm),
		ReferenceStation:      station,
		Timestamp:             p.clock.Now().UTC(),
	}

	if !check.Valid {
		res.Message = check.Message
		res.Suggestion = p.geofence.Suggestion()
		res.Reason = "out_of_coverage"
		p.logger.InfoContext(ctx, "location outside coverage",
			"lat", req.Lat, "lon", req.Lon, "distance_km", res.DistanceFromStationKm)
		return res, nil
	}

	weather, err := p.weather.FrostRiskData(ctx, req.Lat, req.Lon)
	if err != nil {
		return nil, err
	}

	vec, depth, err := p.synthesize(req, weather.Current)
	if err != nil {
		return nil, err
	}

	values, err := schema.Order(vec)
	if err != nil {
		return nil, err
	}

	pred, err := p.classifier.Predict(ctx, values)
	if err != nil {
		return nil, err
	}

	advice, err := p.advisor.Advise(ctx, external.AdvisoryInput{
		LocationName: req.LocationName,
		Latitude:     req.Lat,
		Longitude:    req.Lon,
		Weather:      weather,
		Prediction:   pred,
	})
	if err != nil {
		// Advisors fall back internally; an error here leaves the decision to
		// the classifier alone.
		p.logger.WarnContext(ctx, "advisory unavailable", "error", err)
		advice = nil
	}

	advisory := risk.NoAdvisory
	if cls, ok := advice.Class(); ok {
		advisory = risk.AdvisoryOf(cls)
	} else if advice != nil {
		p.logger.WarnContext(ctx, "advisory level not recognised", "level", advice.Level)
	}
	decision := risk.Decide(pred.Class, advisory)
	if p.metrics != nil {
		p.metrics.RecordDecision(decision.Class.Name(), string(decision.State))
	}

	res.PredictionAvailable = true
	res.CurrentConditions = conditionsOf(weather.Current)
	res.MLPrediction = mlPredictionOf(pred)
	res.Advisory = advice
	res.Risk = riskSummaryOf(decision)
	summary := weather.Summary
	res.ForecastSummary = &summary
	res.HourlyForecast = firstHours(weather.Hourly, hourlyWindow)
	res.ModelInfo = &ModelInfo{
		Version:            p.version,
		FeaturesUsed:       schema.Names(),
		HasLagFeatures:     len(p.horizons) > 0,
		LagHours:           p.horizons,
		GeographicCoverage: fmt.Sprintf("%.0f km alrededor de %s", station.RadiusKm, station.Name),
		HistoryDepth:       depth,
	}
	res.DataSources = dataSources(weather.Current.Source, advice)

	p.logger.InfoContext(ctx, "prediction complete",
		"location_key", string(history.Key(req.Lat, req.Lon)),
		"class", decision.Class.Name(),
		"state", decision.State,
		"history_depth", depth,
	)
	return res, nil
}

// synthesize converts the reading and builds its feature vector from the
// location's history. The snapshot, synthesis and append happen under the
// key's lock so concurrent requests for one location see a consistent
// sequence. It returns the vector and the history depth it was built from.
func (p *Pipeline) synthesize(req Request, current types.CurrentWeather) (features.Vector, int, error) {
	var (
		vec   features.Vector
		depth int
	)
	key := history.Key(req.Lat, req.Lon)
	err := p.history.Update(key, func(snapshot []history.Observation) (history.Observation, error) {
		obs, err := features.FromReading(current, p.observedAt(current), p.defaults)
		if err != nil {
			return history.Observation{}, err
		}
		vec = features.Synthesize(obs, snapshot, p.horizons)
		depth = len(snapshot)
		return obs, nil
	})
	if errors.Is(err, history.ErrOutOfOrder) {
		return features.Vector{}, 0, types.NewAppError(types.ErrCodeValidationOutOfOrder,
			"observation is older than the latest recorded for this location", err)
	}
	if err != nil {
		return features.Vector{}, 0, err
	}
	return vec, depth, nil
}

// observedAt returns the provider's observation time in UTC. Readings
// without a parseable timestamp are stamped with the server clock.
func (p *Pipeline) observedAt(current types.CurrentWeather) time.Time {
	if current.Timestamp == "" {
		return p.clock.Now().UTC()
	}
	loc := time.UTC
	if current.Timezone != "" {
		if l, err := time.LoadLocation(current.Timezone); err == nil {
			loc = l
		}
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, current.Timestamp, loc); err == nil {
			return t.UTC()
		}
	}
	if t, err := time.Parse(time.RFC3339, current.Timestamp); err == nil {
		return t.UTC()
	}
	return p.clock.Now().UTC()
}

func firstHours(hourly []types.HourlyPoint, n int) []types.HourlyPoint {
	if len(hourly) > n {
		return hourly[:n]
	}
	return hourly
}

func dataSources(weatherSource string, advice *external.Advice) []string {
	if weatherSource == "" {
		weatherSource = "open-meteo"
	}
	sources := []string{weatherSource, "classifier"}
	if advice != nil {
		sources = append(sources, advice.Source)
	}
	return sources
}
