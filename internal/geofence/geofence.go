// Package geofence restricts predictions to the circular coverage zone around
// the reference station.
package geofence

import (
	"fmt"
	"math"

	"wayrafrost/internal/types"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Result is the admission decision for a point. Rejection is a valid
// outcome, not an error.
type Result struct {
	Valid      bool    `json:"is_valid"`
	DistanceKm float64 `json:"distance_km"`
	Message    string  `json:"message"`
}

// Distance returns the great-circle distance between a and b in km using the
// haversine formula. The atan2 form is total for equal and antipodal points.
func Distance(a, b Point) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push h marginally outside [0, 1].
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Validate admits point when it lies within radiusKm of reference, boundary
// inclusive.
func Validate(point, reference Point, radiusKm float64) Result {
	d := Distance(reference, point)
	valid := d <= radiusKm

	msg := fmt.Sprintf("Ubicación válida (%.1f km de la estación)", d)
	if !valid {
		msg = fmt.Sprintf("Ubicación fuera de cobertura (%.1f km de la estación, radio %.0f km)", d, radiusKm)
	}
	return Result{Valid: valid, DistanceKm: d, Message: msg}
}

// Validator binds Validate to a reference station.
type Validator struct {
	station types.Station
}

// NewValidator creates a Validator for station.
func NewValidator(station types.Station) *Validator {
	return &Validator{station: station}
}

// Station returns the reference station.
func (v *Validator) Station() types.Station { return v.station }

// Validate checks lat/lon against the station's coverage radius. Rejection
// messages name the station so they can be shown to end users unchanged.
func (v *Validator) Validate(lat, lon float64) Result {
	ref := Point{Lat: v.station.Latitude, Lon: v.station.Longitude}
	res := Validate(Point{Lat: lat, Lon: lon}, ref, v.station.RadiusKm)
	if !res.Valid {
		res.Message = fmt.Sprintf(
			"Predicción no disponible para esta ubicación. El modelo está entrenado con datos de %s "+
				"(distancia: %.1f km). Solo es válido dentro de un radio de %.0f km.",
			v.station.Name, res.DistanceKm, v.station.RadiusKm,
		)
	}
	return res
}

// Suggestion is the hint returned with out-of-coverage results.
func (v *Validator) Suggestion() string {
	return fmt.Sprintf(
		"Para predicciones válidas, seleccione una ubicación en la región de Junín (dentro de %.0f km de %s).",
		v.station.RadiusKm, v.station.Name,
	)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
