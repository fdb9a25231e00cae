package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"wayrafrost/internal/catalog"
	"wayrafrost/internal/core"
	"wayrafrost/internal/external"
	"wayrafrost/internal/types"
)

// --- Mock WeatherReader ---

type weatherCall struct {
	lat, lon float64
	hours    int
}

type mockWeather struct {
	current  *types.CurrentWeather
	forecast *external.Forecast
	err      error
	calls    []weatherCall
}

func (m *mockWeather) Current(_ context.Context, lat, lon float64) (*types.CurrentWeather, error) {
	m.calls = append(m.calls, weatherCall{lat: lat, lon: lon})
	return m.current, m.err
}

func (m *mockWeather) Hourly(_ context.Context, lat, lon float64, hours int) (*external.Forecast, error) {
	m.calls = append(m.calls, weatherCall{lat: lat, lon: lon, hours: hours})
	return m.forecast, m.err
}

// --- Helpers ---

func makeWeatherRouter(t *testing.T, m *mockWeather) http.Handler {
	t.Helper()
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	logger := testHandlerLogger()
	h := NewWeatherHandler(m, cat, core.NewValidator(logger), logger)
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

// --- HandleCurrent Tests ---

func TestHandleCurrent_DefaultsToCatalogDefault(t *testing.T) {
	m := &mockWeather{current: &types.CurrentWeather{Source: "open-meteo", Temperature: types.Float(1.2)}}
	router := makeWeatherRouter(t, m)

	rec := doJSON(t, router, http.MethodGet, "/api/weather-current", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CurrentWeatherResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Location.Name != "Huayao (Estación LAMAR)" || resp.Location.Latitude != -12.0383 {
		t.Errorf("unexpected location %+v", resp.Location)
	}
	if resp.Current == nil || resp.Current.Temperature == nil || *resp.Current.Temperature != 1.2 {
		t.Errorf("unexpected current %+v", resp.Current)
	}
	if len(m.calls) != 1 || m.calls[0].lon != -75.3228 {
		t.Errorf("unexpected calls %+v", m.calls)
	}
}

func TestHandleCurrent_CatalogLocationByName(t *testing.T) {
	m := &mockWeather{current: &types.CurrentWeather{}}
	router := makeWeatherRouter(t, m)

	rec := doJSON(t, router, http.MethodGet, "/api/weather-current?location=jauja", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(m.calls) != 1 || m.calls[0].lat != -11.7756 || m.calls[0].lon != -75.4961 {
		t.Errorf("unexpected calls %+v", m.calls)
	}
}

func TestHandleCurrent_InvalidQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode int
		wantErr  types.ErrorCode
	}{
		{"unknown location", "?location=Puno", http.StatusNotFound, types.ErrCodeNotFoundLocation},
		{"latitude not a number", "?latitude=abc&longitude=-75.2", http.StatusBadRequest, types.ErrCodeValidationInvalidLat},
		{"latitude out of range", "?latitude=-91&longitude=-75.2", http.StatusBadRequest, types.ErrCodeValidationInvalidLat},
		{"latitude NaN", "?latitude=NaN&longitude=-75.2", http.StatusBadRequest, types.ErrCodeValidationInvalidLat},
		{"longitude missing", "?latitude=-12.06", http.StatusBadRequest, types.ErrCodeValidationInvalidLon},
		{"longitude out of range", "?latitude=-12.06&longitude=181", http.StatusBadRequest, types.ErrCodeValidationInvalidLon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockWeather{current: &types.CurrentWeather{}}
			router := makeWeatherRouter(t, m)

			rec := doJSON(t, router, http.MethodGet, "/api/weather-current"+tt.query, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if got := errorCode(t, rec); got != string(tt.wantErr) {
				t.Errorf("expected code %s, got %s", tt.wantErr, got)
			}
			if len(m.calls) != 0 {
				t.Errorf("provider must not be called: %+v", m.calls)
			}
		})
	}
}

func TestHandleCurrent_UpstreamError(t *testing.T) {
	m := &mockWeather{err: types.NewAppError(types.ErrCodeUpstreamWeather, "down", nil)}
	router := makeWeatherRouter(t, m)

	rec := doJSON(t, router, http.MethodGet, "/api/weather-current?latitude=-12.06&longitude=-75.2", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(types.ErrCodeUpstreamWeather) {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamWeather, got)
	}
}

// --- HandleForecast Tests ---

func TestHandleForecast_Success(t *testing.T) {
	m := &mockWeather{forecast: &external.Forecast{
		Hourly:   []types.HourlyPoint{{Time: "2026-06-20T00:00", Temperature: types.Float(4)}},
		Timezone: "America/Lima",
	}}
	router := makeWeatherRouter(t, m)

	rec := doJSON(t, router, http.MethodGet, "/api/forecast?latitude=-12.0653&longitude=-75.2049&hours=12", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ForecastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Hours != 12 || resp.Location.Name != "" || resp.Location.Latitude != -12.0653 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Forecast == nil || len(resp.Hourly) != 1 || resp.Timezone != "America/Lima" {
		t.Errorf("unexpected forecast %+v", resp.Forecast)
	}
	if len(m.calls) != 1 || m.calls[0].hours != 12 {
		t.Errorf("unexpected calls %+v", m.calls)
	}
}

func TestHandleForecast_DefaultHours(t *testing.T) {
	m := &mockWeather{forecast: &external.Forecast{}}
	router := makeWeatherRouter(t, m)

	rec := doJSON(t, router, http.MethodGet, "/api/forecast", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(m.calls) != 1 || m.calls[0].hours != defaultForecastHours {
		t.Errorf("unexpected calls %+v", m.calls)
	}
}

func TestHandleForecast_InvalidHours(t *testing.T) {
	for _, hours := range []string{"0", "385", "-3", "twelve"} {
		t.Run(hours, func(t *testing.T) {
			m := &mockWeather{forecast: &external.Forecast{}}
			router := makeWeatherRouter(t, m)

			rec := doJSON(t, router, http.MethodGet, "/api/forecast?hours="+hours, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := errorCode(t, rec); got != string(types.ErrCodeValidationInvalidHours) {
				t.Errorf("expected code %s, got %s", types.ErrCodeValidationInvalidHours, got)
			}
			if len(m.calls) != 0 {
				t.Errorf("provider must not be called: %+v", m.calls)
			}
		})
	}
}
