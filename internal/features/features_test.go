package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayrafrost/internal/history"
	"wayrafrost/internal/types"
)

var base = time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

func step(t int) history.Observation {
	return history.Observation{
		Timestamp:  base.Add(time.Duration(t) * time.Hour),
		Humidity:   float64(t),
		Irradiance: float64(100 + t),
		WindSpeed:  float64(t) / 10,
		DirSin:     0,
		DirCos:     -1,
	}
}

func TestNames_Order(t *testing.T) {
	names := Names([]int{6})
	assert.Equal(t, []string{
		"HR", "radinf", "vel", "dir_sin", "dir_cos",
		"HR_lag_6h", "radinf_lag_6h", "vel_lag_6h", "dir_sin_lag_6h", "dir_cos_lag_6h",
	}, names)
}

func TestSynthesize_FixedShape(t *testing.T) {
	for _, n := range []int{0, 1, 5, 6, 11, 12, 23, 24} {
		hist := make([]history.Observation, 0, n)
		for i := 0; i < n; i++ {
			hist = append(hist, step(i))
		}
		vec := Synthesize(step(n), hist, DefaultHorizons)
		assert.Equal(t, 20, vec.Len(), "history length %d", n)
		assert.Equal(t, Names(DefaultHorizons), vec.Names())
	}
}

func TestSynthesize_InsufficientHistoryUsesCurrent(t *testing.T) {
	hist := []history.Observation{step(0), step(1), step(2)}
	current := step(3)

	vec := Synthesize(current, hist, DefaultHorizons)

	for _, h := range DefaultHorizons {
		got, ok := vec.Get(LagName("HR", h))
		require.True(t, ok)
		assert.Equal(t, current.Humidity, got, "horizon %d", h)
	}
}

func TestSynthesize_EmptyHistory(t *testing.T) {
	current := step(0)
	vec := Synthesize(current, nil, DefaultHorizons)

	v, _ := vec.Get("radinf_lag_24h")
	assert.Equal(t, current.Irradiance, v)
}

// Constant hourly stream t=0..23: at t=23 the 6h lag must be the t=17 sample.
func TestSynthesize_HorizonSixAtT23ReturnsT17(t *testing.T) {
	store := history.NewStore()
	key := history.Key(-12.0383, -75.3228)

	var vec Vector
	for i := 0; i <= 23; i++ {
		obs := history.Observation{
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Humidity:   85,
			Irradiance: 300,
			WindSpeed:  2,
			DirSin:     float64(i), // marks the step
			DirCos:     1,
		}
		err := store.Update(key, func(snapshot []history.Observation) (history.Observation, error) {
			vec = Synthesize(obs, snapshot, DefaultHorizons)
			return obs, nil
		})
		require.NoError(t, err)
	}

	lag6, _ := vec.Get("dir_sin_lag_6h")
	assert.Equal(t, float64(17), lag6)
	current, _ := vec.Get("dir_sin")
	assert.Equal(t, float64(23), current)
	lag12, _ := vec.Get("dir_sin_lag_12h")
	assert.Equal(t, float64(11), lag12)
	// Only 23 samples precede t=23, so the 24h horizon falls back.
	lag24, _ := vec.Get("dir_sin_lag_24h")
	assert.Equal(t, float64(23), lag24)

	hr, _ := vec.Get("HR_lag_6h")
	assert.Equal(t, float64(85), hr)
}

func TestSynthesize_FullWindowReachesOldest(t *testing.T) {
	hist := make([]history.Observation, 24)
	for i := range hist {
		hist[i] = step(i)
	}
	vec := Synthesize(step(24), hist, DefaultHorizons)

	v, _ := vec.Get("HR_lag_24h")
	assert.Equal(t, float64(0), v)
	v, _ = vec.Get("HR_lag_6h")
	assert.Equal(t, float64(18), v)
}

func TestBindSchema(t *testing.T) {
	t.Run("accepts permutation", func(t *testing.T) {
		declared := Names(DefaultHorizons)
		declared[0], declared[19] = declared[19], declared[0]

		schema, err := BindSchema(declared, DefaultHorizons)
		require.NoError(t, err)
		assert.Equal(t, declared, schema.Names())

		vec := Synthesize(step(3), nil, DefaultHorizons)
		ordered, err := schema.Order(vec)
		require.NoError(t, err)
		require.Len(t, ordered, 20)
		hr, _ := vec.Get("HR")
		assert.Equal(t, hr, ordered[19])
	})

	t.Run("emission order passes values through", func(t *testing.T) {
		schema, err := BindSchema(Names(DefaultHorizons), DefaultHorizons)
		require.NoError(t, err)

		vec := Synthesize(step(3), nil, DefaultHorizons)
		ordered, err := schema.Order(vec)
		require.NoError(t, err)
		assert.Equal(t, vec.Values(), ordered)

		ordered[0] = -1
		hr, _ := vec.Get("HR")
		assert.NotEqual(t, -1.0, hr, "ordered values must not alias the vector")
	})

	t.Run("rejects missing feature", func(t *testing.T) {
		declared := Names(DefaultHorizons)[:19]
		_, err := BindSchema(declared, DefaultHorizons)
		assertSchemaMismatch(t, err)
	})

	t.Run("rejects unexpected feature", func(t *testing.T) {
		declared := append(Names(DefaultHorizons), "temp_lag_6h")
		_, err := BindSchema(declared, DefaultHorizons)
		assertSchemaMismatch(t, err)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		declared := append(Names(DefaultHorizons), "HR")
		_, err := BindSchema(declared, DefaultHorizons)
		assertSchemaMismatch(t, err)
	})

	t.Run("order rejects foreign vector", func(t *testing.T) {
		schema, err := BindSchema(Names([]int{6}), []int{6})
		require.NoError(t, err)
		_, err = schema.Order(Synthesize(step(0), nil, DefaultHorizons))
		assertSchemaMismatch(t, err)
	})
}

func assertSchemaMismatch(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalFeatureSchema, appErr.Code)
}

func TestFromReading(t *testing.T) {
	d := DefaultNeutral()

	t.Run("converts units", func(t *testing.T) {
		obs, err := FromReading(types.CurrentWeather{
			Humidity:      types.Float(85),
			WindSpeedKmh:  types.Float(7.2),
			WindDirection: types.Float(90),
		}, base, d)
		require.NoError(t, err)

		assert.Equal(t, base, obs.Timestamp)
		assert.Equal(t, 85.0, obs.Humidity)
		assert.Equal(t, 300.0, obs.Irradiance)
		assert.InDelta(t, 2.0, obs.WindSpeed, 1e-9)
		assert.InDelta(t, 1.0, obs.DirSin, 1e-9)
		assert.InDelta(t, 0.0, obs.DirCos, 1e-9)
	})

	t.Run("absent fields use configured defaults", func(t *testing.T) {
		custom := Defaults{Humidity: 60, Irradiance: 320, WindSpeed: 1, WindDirection: 0}
		obs, err := FromReading(types.CurrentWeather{Humidity: types.Float(70)}, base, custom)
		require.NoError(t, err)

		assert.Equal(t, 70.0, obs.Humidity)
		assert.Equal(t, 320.0, obs.Irradiance)
		assert.Equal(t, 1.0, obs.WindSpeed)
		assert.InDelta(t, 0.0, obs.DirSin, 1e-9)
		assert.InDelta(t, 1.0, obs.DirCos, 1e-9)
	})

	t.Run("default direction is south", func(t *testing.T) {
		obs, err := FromReading(types.CurrentWeather{Humidity: types.Float(70)}, base, d)
		require.NoError(t, err)
		assert.InDelta(t, -1.0, obs.DirCos, 1e-9)
	})

	for name, r := range map[string]types.CurrentWeather{
		"empty reading":      {},
		"nan humidity":       {Humidity: types.Float(math.NaN())},
		"humidity above 100": {Humidity: types.Float(140)},
		"negative wind":      {WindSpeedKmh: types.Float(-3)},
		"infinite radiation": {Radiation: types.Float(math.Inf(1))},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromReading(r, base, d)
			require.Error(t, err)
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeValidationMissingFeature, appErr.Code)
		})
	}
}
