package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"wayrafrost/internal/types"
)

const (
	openMeteoAPIBase = "https://api.open-meteo.com"
	openMeteoSource  = "open-meteo"

	// DefaultForecastHours is the forecast window fetched for frost analysis.
	DefaultForecastHours = 48
	// FrostThresholdC marks an hour as frost-risk when the air temperature is
	// below it.
	FrostThresholdC = 2.0
	// maxFrostRiskHours caps the hours listed in the summary; the count is not
	// capped.
	maxFrostRiskHours = 12

	nightStartHour = 18
	nightEndHour   = 8

	weatherCacheEntries = 2048
)

var (
	currentVariables = []string{
		"temperature_2m", "relative_humidity_2m", "apparent_temperature",
		"precipitation", "weather_code", "cloud_cover", "pressure_msl",
		"wind_speed_10m", "wind_direction_10m", "wind_gusts_10m",
		"shortwave_radiation",
	}
	hourlyVariables = []string{
		"temperature_2m", "relative_humidity_2m", "dew_point_2m", "cloud_cover",
		"wind_speed_10m", "wind_direction_10m", "shortwave_radiation",
		"soil_temperature_0cm", "weather_code",
	}
)

// Observer receives collaborator outcomes for metrics. All methods must be
// safe for concurrent use.
type Observer interface {
	ObserveCall(provider, operation string, err error, elapsed time.Duration)
	ObserveCache(provider string, hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, string, error, time.Duration) {}
func (nopObserver) ObserveCache(string, bool)                        {}

// Forecast is an hourly forecast for one coordinate.
type Forecast struct {
	Hourly    []types.HourlyPoint `json:"forecast"`
	Elevation *float64            `json:"elevation"`
	Timezone  string              `json:"timezone"`
}

// OpenMeteoConfig configures an OpenMeteoClient.
type OpenMeteoConfig struct {
	BaseURL       string
	CacheTTL      time.Duration
	ForecastHours int
	Clock         clockwork.Clock
	Logger        *slog.Logger
	Observer      Observer
}

// OpenMeteoClient reads current conditions and hourly forecasts from the
// Open-Meteo API. Responses are cached per coordinate for CacheTTL and
// concurrent misses for the same request share one upstream call.
type OpenMeteoClient struct {
	base          *BaseClient
	baseURL       string
	forecastHours int
	logger        *slog.Logger
	observer      Observer
	clock         clockwork.Clock

	group    singleflight.Group
	current  *ttlCache[*types.CurrentWeather]
	forecast *ttlCache[*Forecast]
}

// NewOpenMeteoClient creates an OpenMeteoClient on top of base.
func NewOpenMeteoClient(base *BaseClient, cfg OpenMeteoConfig) *OpenMeteoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openMeteoAPIBase
	}
	if cfg.ForecastHours <= 0 {
		cfg.ForecastHours = DefaultForecastHours
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	return &OpenMeteoClient{
		base:          base,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		forecastHours: cfg.ForecastHours,
		logger:        cfg.Logger,
		observer:      cfg.Observer,
		clock:         cfg.Clock,
		current:       newTTLCache[*types.CurrentWeather](cfg.CacheTTL, weatherCacheEntries, cfg.Clock),
		forecast:      newTTLCache[*Forecast](cfg.CacheTTL, weatherCacheEntries, cfg.Clock),
	}
}

type openMeteoResponse struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Elevation *float64         `json:"elevation"`
	Timezone  string           `json:"timezone"`
	Current   *openMeteoNow    `json:"current"`
	Hourly    *openMeteoHourly `json:"hourly"`
}

type openMeteoNow struct {
	Time                string   `json:"time"`
	Temperature         *float64 `json:"temperature_2m"`
	Humidity            *float64 `json:"relative_humidity_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	Precipitation       *float64 `json:"precipitation"`
	WeatherCode         *int     `json:"weather_code"`
	CloudCover          *float64 `json:"cloud_cover"`
	PressureMSL         *float64 `json:"pressure_msl"`
	WindSpeed           *float64 `json:"wind_speed_10m"`
	WindDirection       *float64 `json:"wind_direction_10m"`
	WindGusts           *float64 `json:"wind_gusts_10m"`
	Radiation           *float64 `json:"shortwave_radiation"`
}

type openMeteoHourly struct {
	Time               []string   `json:"time"`
	Temperature        []*float64 `json:"temperature_2m"`
	Humidity           []*float64 `json:"relative_humidity_2m"`
	DewPoint           []*float64 `json:"dew_point_2m"`
	CloudCover         []*float64 `json:"cloud_cover"`
	WindSpeed          []*float64 `json:"wind_speed_10m"`
	WindDirection      []*float64 `json:"wind_direction_10m"`
	ShortwaveRadiation []*float64 `json:"shortwave_radiation"`
	SoilTemperature0cm []*float64 `json:"soil_temperature_0cm"`
	WeatherCode        []*int     `json:"weather_code"`
}

// at returns s[i], or nil when the series is shorter than the time axis.
func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func coordKey(kind string, lat, lon float64, extra ...string) string {
	k := fmt.Sprintf("%s:%.4f,%.4f", kind, lat, lon)
	if len(extra) > 0 {
		k += ":" + strings.Join(extra, ",")
	}
	return k
}

// Current returns current conditions at lat/lon.
func (c *OpenMeteoClient) Current(ctx context.Context, lat, lon float64) (*types.CurrentWeather, error) {
	key := coordKey("current", lat, lon)
	if cw, ok := c.current.get(key); ok {
		c.observer.ObserveCache(openMeteoSource, true)
		return cw, nil
	}
	c.observer.ObserveCache(openMeteoSource, false)

	v, err, _ := c.group.Do(key, func() (any, error) {
		params := url.Values{}
		params.Set("current", strings.Join(currentVariables, ","))

		var resp openMeteoResponse
		if err := c.fetch(ctx, "Current", lat, lon, params, &resp); err != nil {
			return nil, err
		}
		if resp.Current == nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "open-meteo response has no current block", nil)
		}

		now := resp.Current
		cw := &types.CurrentWeather{
			Source:              openMeteoSource,
			Timestamp:           now.Time,
			Temperature:         now.Temperature,
			ApparentTemperature: now.ApparentTemperature,
			Humidity:            now.Humidity,
			WindSpeedKmh:        now.WindSpeed,
			WindDirection:       now.WindDirection,
			WindGusts:           now.WindGusts,
			CloudCover:          now.CloudCover,
			Precipitation:       now.Precipitation,
			PressureMSL:         now.PressureMSL,
			Radiation:           now.Radiation,
			WeatherCode:         now.WeatherCode,
			Timezone:            resp.Timezone,
			Elevation:           resp.Elevation,
		}
		c.current.put(key, cw)
		return cw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.CurrentWeather), nil
}

// Hourly returns the next hours of forecast at lat/lon.
func (c *OpenMeteoClient) Hourly(ctx context.Context, lat, lon float64, hours int) (*Forecast, error) {
	if hours <= 0 {
		hours = c.forecastHours
	}
	key := coordKey("hourly", lat, lon, strconv.Itoa(hours))
	if f, ok := c.forecast.get(key); ok {
		c.observer.ObserveCache(openMeteoSource, true)
		return f, nil
	}
	c.observer.ObserveCache(openMeteoSource, false)

	v, err, _ := c.group.Do(key, func() (any, error) {
		params := url.Values{}
		params.Set("hourly", strings.Join(hourlyVariables, ","))
		params.Set("forecast_hours", strconv.Itoa(hours))

		var resp openMeteoResponse
		if err := c.fetch(ctx, "Hourly", lat, lon, params, &resp); err != nil {
			return nil, err
		}

		f := &Forecast{Elevation: resp.Elevation, Timezone: resp.Timezone}
		if h := resp.Hourly; h != nil {
			f.Hourly = make([]types.HourlyPoint, 0, len(h.Time))
			for i, ts := range h.Time {
				f.Hourly = append(f.Hourly, types.HourlyPoint{
					Time:               ts,
					Temperature:        at(h.Temperature, i),
					Humidity:           at(h.Humidity, i),
					DewPoint:           at(h.DewPoint, i),
					CloudCover:         at(h.CloudCover, i),
					WindSpeedKmh:       at(h.WindSpeed, i),
					WindDirection:      at(h.WindDirection, i),
					ShortwaveRadiation: at(h.ShortwaveRadiation, i),
					SoilTemperature0cm: at(h.SoilTemperature0cm, i),
					WeatherCode:        at(h.WeatherCode, i),
				})
			}
		}
		c.forecast.put(key, f)
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Forecast), nil
}

// FrostRiskData fetches current conditions and the forecast in parallel and
// summarizes the night hours of the forecast.
func (c *OpenMeteoClient) FrostRiskData(ctx context.Context, lat, lon float64) (*types.FrostRiskData, error) {
	var (
		current  *types.CurrentWeather
		forecast *Forecast
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = c.Current(gctx, lat, lon)
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = c.Hourly(gctx, lat, lon, c.forecastHours)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hourly := forecast.Hourly
	if len(hourly) > c.forecastHours {
		hourly = hourly[:c.forecastHours]
	}

	return &types.FrostRiskData{
		Current:   *current,
		Summary:   SummarizeForecast(forecast.Hourly),
		Hourly:    hourly,
		Elevation: forecast.Elevation,
		Timezone:  forecast.Timezone,
	}, nil
}

// SummarizeForecast aggregates the night hours (18:00 through 08:00 local
// time) of hourly. Hours whose timestamp does not parse are skipped.
func SummarizeForecast(hourly []types.HourlyPoint) types.ForecastSummary {
	s := types.ForecastSummary{TotalHours: len(hourly), FrostRiskHours: []types.HourlyPoint{}}

	for _, h := range hourly {
		t, ok := parseLocal(h.Time)
		if !ok || (t.Hour() < nightStartHour && t.Hour() > nightEndHour) {
			continue
		}
		s.NightHoursCount++

		if t := h.Temperature; t != nil {
			if s.MinTemperature == nil || *t < *s.MinTemperature {
				s.MinTemperature = types.Float(*t)
			}
			if *t < FrostThresholdC {
				s.FrostRiskHoursCount++
				if len(s.FrostRiskHours) < maxFrostRiskHours {
					s.FrostRiskHours = append(s.FrostRiskHours, h)
				}
			}
		}
		if t := h.SoilTemperature0cm; t != nil {
			if s.MinSoilTemperature == nil || *t < *s.MinSoilTemperature {
				s.MinSoilTemperature = types.Float(*t)
			}
		}
	}
	return s
}

// parseLocal parses Open-Meteo's local ISO time ("2006-01-02T15:04").
func parseLocal(ts string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (c *OpenMeteoClient) fetch(ctx context.Context, op string, lat, lon float64, params url.Values, out *openMeteoResponse) error {
	start := c.clock.Now()
	err := c.doFetch(ctx, op, lat, lon, params, out)
	c.observer.ObserveCall(openMeteoSource, op, err, c.clock.Since(start))
	return err
}

func (c *OpenMeteoClient) doFetch(ctx context.Context, op string, lat, lon float64, params url.Values, out *openMeteoResponse) error {
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+params.Encode(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create open-meteo request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return wrapError(openMeteoSource, types.ErrCodeUpstreamWeather, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(c.logger, openMeteoSource, types.ErrCodeUpstreamWeather, op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeather, "failed to decode open-meteo response", err)
	}
	return nil
}
