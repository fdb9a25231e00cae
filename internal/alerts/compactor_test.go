package alerts

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayrafrost/internal/risk"
)

var lima = time.FixedZone("PET", -5*3600)

func f(v float64) *float64 { return &v }

func forecast24() []*float64 {
	out := make([]*float64, 24)
	for i := range out {
		out[i] = f(float64(i) / 10)
	}
	out[11] = f(1.0)
	out[23] = f(-0.5)
	return out
}

func basePayload() Payload {
	return Payload{
		Available:   true,
		Class:       risk.Moderate,
		Temperature: f(3.2),
		Forecast:    forecast24(),
		Timestamp:   time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestCompact_RichFitsPrimaryBudget(t *testing.T) {
	text := Compact(basePayload(), DefaultBudget(), lima)

	assert.Equal(t, TierRich, text.Tier)
	assert.Equal(t, "WayraFrost !!\nModerada\nAhora:3.2C\n12h:1.0C 24h:-0.5C\n15/06 05:30", text.Body)
	assert.Equal(t, utf8.RuneCountInString(text.Body), text.Length)
	assert.False(t, text.Truncated)
	assert.Equal(t, 1, text.Segments)
}

func TestCompact_RichMarkerCountsAsOneCharacter(t *testing.T) {
	p := basePayload()
	p.Class = risk.NoRisk
	text := Compact(p, DefaultBudget(), lima)

	require.Equal(t, TierRich, text.Tier)
	assert.True(t, strings.HasPrefix(text.Body, "WayraFrost ✓\nSin Riesgo\n"))
	assert.Less(t, text.Length, len(text.Body))
}

func TestCompact_FallsBackToPlain(t *testing.T) {
	text := Compact(basePayload(), Budget{Primary: 40, Ceiling: 1600}, lima)

	assert.Equal(t, TierPlain, text.Tier)
	assert.Equal(t,
		"WayraFrost Alerta\nRIESGO: Moderada\nTemp: 3.2C\n12h: 1.0C\n24h: -0.5C\n15/06 05:30\nwayrafrost.app",
		text.Body)
	assert.NotContains(t, text.Body, "!")
	assert.False(t, text.Truncated)
}

func TestCompact_UnavailableTiers(t *testing.T) {
	p := Payload{
		Available:  false,
		DistanceKm: 711.2,
		Timestamp:  time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC),
	}

	rich := Compact(p, DefaultBudget(), lima)
	assert.Equal(t, TierUnavailableRich, rich.Tier)
	assert.Equal(t, "WayraFrost\nTemp:?C\nFuera de cobertura\n711km de estacion\n15/06 05:30", rich.Body)

	p.Temperature = f(8.5)
	plain := Compact(p, Budget{Primary: 30, Ceiling: 1600}, lima)
	assert.Equal(t, TierUnavailablePlain, plain.Tier)
	assert.Equal(t,
		"WayraFrost\nTemp: 8.5C\nFUERA DE COBERTURA\n711km de estacion\nSolo valido en Junin\n15/06 05:30",
		plain.Body)
}

func TestCompact_UnavailableNeverUsesPredictionTiers(t *testing.T) {
	p := Payload{Available: false, Class: risk.Severe}
	for _, primary := range []int{0, 10, 160, 1000} {
		text := Compact(p, Budget{Primary: primary, Ceiling: 1600}, time.UTC)
		assert.Contains(t, []Tier{TierUnavailableRich, TierUnavailablePlain}, text.Tier)
	}
}

func TestCompact_MissingForecastRendersUnknown(t *testing.T) {
	p := basePayload()
	p.Forecast = p.Forecast[:10]
	text := Compact(p, DefaultBudget(), lima)
	assert.Contains(t, text.Body, "12h:?C 24h:?C")

	p.Forecast = forecast24()
	p.Forecast[11] = nil
	text = Compact(p, DefaultBudget(), lima)
	assert.Contains(t, text.Body, "12h:?C 24h:-0.5C")
}

func TestCompact_TruncatesAtCeiling(t *testing.T) {
	text := Compact(basePayload(), Budget{Primary: 20, Ceiling: 30}, lima)

	assert.Equal(t, TierPlain, text.Tier)
	assert.True(t, text.Truncated)
	assert.Equal(t, 30, text.Length)
	assert.Equal(t, 30, utf8.RuneCountInString(text.Body))
	assert.True(t, strings.HasPrefix(
		"WayraFrost Alerta\nRIESGO: Moderada\nTemp: 3.2C\n12h: 1.0C\n24h: -0.5C\n15/06 05:30\nwayrafrost.app",
		text.Body))
}

func TestCompact_TruncationKeepsWholeRunes(t *testing.T) {
	p := basePayload()
	p.Class = risk.NoRisk
	// Ceiling lands right after the multi-byte marker.
	text := Compact(p, Budget{Primary: 1000, Ceiling: 12}, lima)

	assert.Equal(t, TierRich, text.Tier)
	assert.True(t, text.Truncated)
	assert.Equal(t, "WayraFrost ✓", text.Body)
	assert.True(t, utf8.ValidString(text.Body))
}

func TestCompact_NeverExceedsCeiling(t *testing.T) {
	classes := []risk.Class{risk.NoRisk, risk.Risk, risk.Moderate, risk.Severe}
	for _, c := range classes {
		for _, ceiling := range []int{1, 5, 11, 12, 13, 50, 1600} {
			for _, available := range []bool{true, false} {
				p := basePayload()
				p.Class = c
				p.Available = available
				text := Compact(p, Budget{Primary: 0, Ceiling: ceiling}, lima)
				assert.LessOrEqual(t, text.Length, ceiling)
				assert.True(t, utf8.ValidString(text.Body))
			}
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "añ✓", truncateRunes("añ✓b", 3))
	assert.Equal(t, "añ✓b", truncateRunes("añ✓b", 10))
	assert.Equal(t, "", truncateRunes("añ✓b", 0))
}

func TestSegments(t *testing.T) {
	assert.Equal(t, 1, Segments(0))
	assert.Equal(t, 1, Segments(159))
	assert.Equal(t, 2, Segments(160))
	assert.Equal(t, 11, Segments(1600))
}

func TestCompactor_StampsFromClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 7, 2, 12, 0, 0, 0, time.UTC))
	c := NewCompactor(DefaultBudget(), clock, lima)

	p := basePayload()
	p.Timestamp = time.Time{}
	text := c.Compact(p)
	assert.True(t, strings.HasSuffix(text.Body, "\n02/07 07:00"))
	assert.Equal(t, DefaultBudget(), c.Budget())
}
