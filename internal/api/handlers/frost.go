// Package handlers contains the HTTP handlers of the WayraFrost API.
//
// This file covers the frost-prediction endpoints:
//   - Station information (GET /api/station-info)
//   - Location validation (POST /api/validate-location)
//   - Prediction (POST /api/predict-enhanced-v2)
//   - Known locations (GET /api/locations)
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"wayrafrost/internal/catalog"
	"wayrafrost/internal/core"
	"wayrafrost/internal/geofence"
	"wayrafrost/internal/prediction"
	"wayrafrost/internal/types"
)

// defaultLocationName labels predictions requested without a name.
const defaultLocationName = "Ubicación"

// Predictor runs the prediction pipeline.
type Predictor interface {
	Predict(ctx context.Context, req prediction.Request) (*prediction.Result, error)
}

// FrostHandler serves the station, geofence and prediction endpoints.
type FrostHandler struct {
	predictor Predictor
	geofence  *geofence.Validator
	catalog   *catalog.Catalog
	validator *core.Validator
	logger    *slog.Logger
}

// NewFrostHandler creates a FrostHandler.
func NewFrostHandler(
	predictor Predictor,
	fence *geofence.Validator,
	cat *catalog.Catalog,
	val *core.Validator,
	logger *slog.Logger,
) *FrostHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrostHandler{
		predictor: predictor,
		geofence:  fence,
		catalog:   cat,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the endpoints under the /api router.
func (h *FrostHandler) RegisterRoutes(r chi.Router) {
	r.Get("/station-info", h.HandleStationInfo)
	r.Post("/validate-location", h.HandleValidateLocation)
	r.Post("/predict-enhanced-v2", h.HandlePredict)
	r.Get("/locations", h.HandleLocations)
}

// LocationRequest is the body of validate-location and predict-enhanced-v2.
// Coordinates are pointers so that an explicit 0 is distinguishable from a
// missing field.
type LocationRequest struct {
	Latitude     *float64 `json:"latitude" validate:"required,finite,min=-90,max=90"`
	Longitude    *float64 `json:"longitude" validate:"required,finite,min=-180,max=180"`
	LocationName string   `json:"location_name,omitempty" validate:"max=120"`
}

type coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type coverageArea struct {
	Type     string      `json:"type"`
	Center   coordinates `json:"center"`
	RadiusKm float64     `json:"radius_km"`
}

// StationInfoResponse is the body of GET /api/station-info.
type StationInfoResponse struct {
	Station      types.Station `json:"station"`
	CoverageArea coverageArea  `json:"coverage_area"`
	Message      string        `json:"message"`
}

type stationRef struct {
	Name        string      `json:"name"`
	Coordinates coordinates `json:"coordinates"`
}

// ValidateLocationResponse is the body of POST /api/validate-location.
type ValidateLocationResponse struct {
	IsValid    bool       `json:"is_valid"`
	DistanceKm float64    `json:"distance_km"`
	Message    string     `json:"message"`
	Station    stationRef `json:"station"`
}

// LocationsResponse is the body of GET /api/locations.
type LocationsResponse struct {
	Locations []catalog.Entry `json:"locations"`
	Default   catalog.Entry   `json:"default"`
	Station   types.Station   `json:"station"`
	Note      string          `json:"note"`
}

// HandleStationInfo handles GET /api/station-info.
func (h *FrostHandler) HandleStationInfo(w http.ResponseWriter, r *http.Request) {
	st := h.geofence.Station()
	core.JSON(w, r, http.StatusOK, StationInfoResponse{
		Station: st,
		CoverageArea: coverageArea{
			Type:     "circle",
			Center:   coordinates{Latitude: st.Latitude, Longitude: st.Longitude},
			RadiusKm: st.RadiusKm,
		},
		Message: fmt.Sprintf(
			"Este modelo de predicción de heladas está entrenado con datos de %s y es válido únicamente "+
				"para la región de Junín dentro de un radio de %.0f km.",
			st.Name, st.RadiusKm,
		),
	})
}

// HandleValidateLocation handles POST /api/validate-location.
func (h *FrostHandler) HandleValidateLocation(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLocation(w, r)
	if !ok {
		return
	}

	res := h.geofence.Validate(*req.Latitude, *req.Longitude)
	st := h.geofence.Station()
	core.JSON(w, r, http.StatusOK, ValidateLocationResponse{
		IsValid:    res.Valid,
		DistanceKm: round2(res.DistanceKm),
		Message:    res.Message,
		Station: stationRef{
			Name:        st.Name,
			Coordinates: coordinates{Latitude: st.Latitude, Longitude: st.Longitude},
		},
	})
}

// HandlePredict handles POST /api/predict-enhanced-v2. Out-of-coverage
// locations are answered with 200 and prediction_available=false.
func (h *FrostHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLocation(w, r)
	if !ok {
		return
	}

	name := strings.TrimSpace(req.LocationName)
	if name == "" {
		name = defaultLocationName
	}

	res, err := h.predictor.Predict(r.Context(), prediction.Request{
		Lat:          *req.Latitude,
		Lon:          *req.Longitude,
		LocationName: name,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "prediction failed",
			"lat", *req.Latitude, "lon", *req.Longitude, "error", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, res)
}

// HandleLocations handles GET /api/locations.
func (h *FrostHandler) HandleLocations(w http.ResponseWriter, r *http.Request) {
	entries := h.catalog.Validated(h.geofence)
	st := h.geofence.Station()
	core.JSON(w, r, http.StatusOK, LocationsResponse{
		Locations: entries,
		Default:   entries[0],
		Station:   st,
		Note:      fmt.Sprintf("Solo se muestran ubicaciones dentro del radio de %.0f km de la estación", st.RadiusKm),
	})
}

func (h *FrostHandler) decodeLocation(w http.ResponseWriter, r *http.Request) (*LocationRequest, bool) {
	var req LocationRequest
	if err := core.DecodeJSON(w, r, &req, false); err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	return &req, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
