// Package features turns raw observations into the fixed-shape lag feature
// vector consumed by the frost classifier.
package features

import (
	"fmt"

	"wayrafrost/internal/history"
)

// DefaultHorizons are the lag horizons, in sampling steps (hours).
var DefaultHorizons = []int{6, 12, 24}

// variable is a tracked base variable and its accessor.
type variable struct {
	name string
	get  func(history.Observation) float64
}

// variables lists the tracked base variables in emission order.
var variables = []variable{
	{"HR", func(o history.Observation) float64 { return o.Humidity }},
	{"radinf", func(o history.Observation) float64 { return o.Irradiance }},
	{"vel", func(o history.Observation) float64 { return o.WindSpeed }},
	{"dir_sin", func(o history.Observation) float64 { return o.DirSin }},
	{"dir_cos", func(o history.Observation) float64 { return o.DirCos }},
}

// Variables returns the base variable names in emission order.
func Variables() []string {
	out := make([]string, len(variables))
	for i, v := range variables {
		out[i] = v.name
	}
	return out
}

// LagName is the feature name of variable at horizon h.
func LagName(variable string, h int) string {
	return fmt.Sprintf("%s_lag_%dh", variable, h)
}

// Names returns every feature name Synthesize emits for horizons, in order.
func Names(horizons []int) []string {
	names := Variables()
	for _, h := range horizons {
		for _, v := range variables {
			names = append(names, LagName(v.name, h))
		}
	}
	return names
}

// Synthesize builds the feature vector for current given the history
// snapshot taken before current was recorded.
//
// For horizon h the lag value comes from hist[len(hist)-h], the sample h
// steps before current. When fewer than h samples exist the current value is
// used instead. The result always has len(variables)*(1+len(horizons))
// entries.
func Synthesize(current history.Observation, hist []history.Observation, horizons []int) Vector {
	vec := newVector(len(variables) * (1 + len(horizons)))

	for _, v := range variables {
		vec.set(v.name, v.get(current))
	}

	for _, h := range horizons {
		source := current
		if h > 0 && len(hist) >= h {
			source = hist[len(hist)-h]
		}
		for _, v := range variables {
			vec.set(LagName(v.name, h), v.get(source))
		}
	}

	return vec
}
