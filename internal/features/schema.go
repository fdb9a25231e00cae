package features

import (
	"fmt"
	"slices"
	"sort"

	"wayrafrost/internal/types"
)

// Schema is the classifier's declared feature order. It is bound once at
// startup; Order then reorders every request's vector to match.
type Schema struct {
	order []string
}

// BindSchema checks that the classifier's declared features are exactly the
// features synthesized for horizons, in any order. Any difference is a
// feature_schema_mismatch error.
func BindSchema(declared []string, horizons []int) (*Schema, error) {
	expected := make(map[string]struct{})
	for _, n := range Names(horizons) {
		expected[n] = struct{}{}
	}

	seen := make(map[string]struct{}, len(declared))
	var unexpected, duplicated []string
	for _, n := range declared {
		if _, dup := seen[n]; dup {
			duplicated = append(duplicated, n)
			continue
		}
		seen[n] = struct{}{}
		if _, ok := expected[n]; !ok {
			unexpected = append(unexpected, n)
		}
	}

	var missing []string
	for n := range expected {
		if _, ok := seen[n]; !ok {
			missing = append(missing, n)
		}
	}

	if len(missing)+len(unexpected)+len(duplicated) > 0 {
		sort.Strings(missing)
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeInternalFeatureSchema,
			"classifier feature list does not match synthesized features",
			nil,
			map[string]any{
				"missing":    missing,
				"unexpected": unexpected,
				"duplicated": duplicated,
			},
		)
	}

	return &Schema{order: append([]string(nil), declared...)}, nil
}

// Names returns the bound feature order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of bound features.
func (s *Schema) Len() int { return len(s.order) }

// Order returns vec's values in the bound order.
func (s *Schema) Order(vec Vector) ([]float64, error) {
	if vec.Len() != len(s.order) {
		return nil, types.NewAppError(
			types.ErrCodeInternalFeatureSchema,
			fmt.Sprintf("feature vector has %d entries, schema expects %d", vec.Len(), len(s.order)),
			nil,
		)
	}
	if slices.Equal(vec.names, s.order) {
		return vec.Values(), nil
	}
	out := make([]float64, len(s.order))
	for i, name := range s.order {
		v, ok := vec.Get(name)
		if !ok {
			return nil, types.NewAppError(
				types.ErrCodeInternalFeatureSchema,
				fmt.Sprintf("feature %q missing from vector", name),
				nil,
			)
		}
		out[i] = v
	}
	return out, nil
}
