package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"wayrafrost/internal/catalog"
	"wayrafrost/internal/core"
	"wayrafrost/internal/external"
	"wayrafrost/internal/types"
)

// defaultForecastHours applies when /api/forecast is called without hours.
const defaultForecastHours = 48

// WeatherReader fetches raw weather data.
type WeatherReader interface {
	Current(ctx context.Context, lat, lon float64) (*types.CurrentWeather, error)
	Hourly(ctx context.Context, lat, lon float64, hours int) (*external.Forecast, error)
}

// WeatherHandler serves current conditions (GET /api/weather-current) and
// the hourly forecast (GET /api/forecast). Both accept ?location=<catalog
// name> or ?latitude=&longitude=; with neither they answer for the catalog's
// default location.
type WeatherHandler struct {
	weather   WeatherReader
	catalog   *catalog.Catalog
	validator *core.Validator
	logger    *slog.Logger
}

// NewWeatherHandler creates a WeatherHandler.
func NewWeatherHandler(weather WeatherReader, cat *catalog.Catalog, val *core.Validator, logger *slog.Logger) *WeatherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherHandler{weather: weather, catalog: cat, validator: val, logger: logger}
}

// RegisterRoutes mounts the endpoints under the /api router.
func (h *WeatherHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weather-current", h.HandleCurrent)
	r.Get("/forecast", h.HandleForecast)
}

// WeatherQuery is the parsed query string of the weather endpoints.
type WeatherQuery struct {
	Latitude  *float64 `json:"latitude" validate:"required,finite,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"required,finite,min=-180,max=180"`
	Hours     int      `json:"hours" validate:"min=1,max=384"`
}

// WeatherLocation identifies the point a weather response refers to. Name
// is set only for catalog locations.
type WeatherLocation struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CurrentWeatherResponse is the body of GET /api/weather-current.
type CurrentWeatherResponse struct {
	Location WeatherLocation       `json:"location"`
	Current  *types.CurrentWeather `json:"current"`
}

// ForecastResponse is the body of GET /api/forecast.
type ForecastResponse struct {
	Location WeatherLocation `json:"location"`
	Hours    int             `json:"hours"`
	*external.Forecast
}

// HandleCurrent handles GET /api/weather-current.
func (h *WeatherHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	loc, _, err := h.parseQuery(r, false)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cw, err := h.weather.Current(r.Context(), loc.Latitude, loc.Longitude)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "current weather failed",
			"lat", loc.Latitude, "lon", loc.Longitude, "error", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, CurrentWeatherResponse{Location: loc, Current: cw})
}

// HandleForecast handles GET /api/forecast.
func (h *WeatherHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	loc, hours, err := h.parseQuery(r, true)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	f, err := h.weather.Hourly(r.Context(), loc.Latitude, loc.Longitude, hours)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "forecast failed",
			"lat", loc.Latitude, "lon", loc.Longitude, "hours", hours, "error", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, ForecastResponse{Location: loc, Hours: hours, Forecast: f})
}

func (h *WeatherHandler) parseQuery(r *http.Request, withHours bool) (WeatherLocation, int, error) {
	q := r.URL.Query()
	query := WeatherQuery{Hours: defaultForecastHours}
	if raw := q.Get("hours"); withHours && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return WeatherLocation{}, 0, types.NewAppError(types.ErrCodeValidationInvalidHours,
				"hours must be an integer", err)
		}
		query.Hours = n
	}

	var name string
	rawLat, rawLon := q.Get("latitude"), q.Get("longitude")
	switch location := strings.TrimSpace(q.Get("location")); {
	case location != "":
		l, ok := h.catalog.Find(location)
		if !ok {
			return WeatherLocation{}, 0, types.NewAppErrorWithDetails(types.ErrCodeNotFoundLocation,
				"unknown location", nil, map[string]any{"location": location})
		}
		name, query.Latitude, query.Longitude = l.Name, &l.Latitude, &l.Longitude
	case rawLat == "" && rawLon == "":
		l := h.catalog.Default()
		name, query.Latitude, query.Longitude = l.Name, &l.Latitude, &l.Longitude
	default:
		if rawLat != "" {
			v, err := strconv.ParseFloat(rawLat, 64)
			if err != nil {
				return WeatherLocation{}, 0, types.NewAppError(types.ErrCodeValidationInvalidLat,
					"latitude must be a number", err)
			}
			query.Latitude = &v
		}
		if rawLon != "" {
			v, err := strconv.ParseFloat(rawLon, 64)
			if err != nil {
				return WeatherLocation{}, 0, types.NewAppError(types.ErrCodeValidationInvalidLon,
					"longitude must be a number", err)
			}
			query.Longitude = &v
		}
	}

	if err := h.validator.ValidateStruct(query); err != nil {
		return WeatherLocation{}, 0, err
	}
	return WeatherLocation{Name: name, Latitude: *query.Latitude, Longitude: *query.Longitude}, query.Hours, nil
}
