package features

import "encoding/json"

// Vector is an insertion-ordered name -> value mapping.
type Vector struct {
	names  []string
	values []float64
	index  map[string]int
}

func newVector(size int) Vector {
	return Vector{
		names:  make([]string, 0, size),
		values: make([]float64, 0, size),
		index:  make(map[string]int, size),
	}
}

func (v *Vector) set(name string, value float64) {
	if i, ok := v.index[name]; ok {
		v.values[i] = value
		return
	}
	v.index[name] = len(v.names)
	v.names = append(v.names, name)
	v.values = append(v.values, value)
}

// Len returns the number of features.
func (v Vector) Len() int { return len(v.names) }

// Names returns the feature names in emission order.
func (v Vector) Names() []string {
	return append([]string(nil), v.names...)
}

// Values returns the feature values in emission order.
func (v Vector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// Get returns the value of the named feature.
func (v Vector) Get(name string) (float64, bool) {
	i, ok := v.index[name]
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// MarshalJSON encodes the vector as an object.
func (v Vector) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, len(v.names))
	for i, n := range v.names {
		m[n] = v.values[i]
	}
	return json.Marshal(m)
}
