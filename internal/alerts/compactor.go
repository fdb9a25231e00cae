// Package alerts renders frost alerts into short text messages that fit the
// SMS length budget, and prepares them for dispatch.
package alerts

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"wayrafrost/internal/risk"
)

const (
	// DefaultPrimaryBudget is the single-segment SMS length.
	DefaultPrimaryBudget = 160
	// DefaultHardCeiling is the longest message the transport accepts.
	DefaultHardCeiling = 1600
	// SegmentLength is used only for the operator-facing segment estimate.
	SegmentLength = 160

	timestampLayout = "02/01 15:04"
	unknownValue    = "?"
)

// Tier is the rendering strategy that produced a Text.
type Tier string

const (
	TierRich             Tier = "rich"
	TierPlain            Tier = "plain"
	TierUnavailableRich  Tier = "unavailable_rich"
	TierUnavailablePlain Tier = "unavailable_plain"
)

// next is the tier tried when t overflows the primary budget. The final tier
// of each ladder returns itself.
func (t Tier) next() Tier {
	switch t {
	case TierRich:
		return TierPlain
	case TierUnavailableRich:
		return TierUnavailablePlain
	case TierPlain, TierUnavailablePlain:
		return t
	}
	return t
}

// Budget bounds message length in runes.
type Budget struct {
	Primary int `json:"primary"`
	Ceiling int `json:"ceiling"`
}

// DefaultBudget returns the 160/1600 budget.
func DefaultBudget() Budget {
	return Budget{Primary: DefaultPrimaryBudget, Ceiling: DefaultHardCeiling}
}

// Payload holds the fields rendered into an alert. Forecast holds hourly
// temperatures; index h-1 is the reading h hours ahead.
type Payload struct {
	Available   bool
	Class       risk.Class
	Temperature *float64
	Forecast    []*float64
	DistanceKm  float64
	Timestamp   time.Time
}

// Text is a rendered alert.
type Text struct {
	Body      string `json:"message"`
	Tier      Tier   `json:"tier"`
	Length    int    `json:"length"`
	Truncated bool   `json:"truncated"`
	Segments  int    `json:"estimated_segments"`
}

// Compactor renders payloads in a fixed timezone. A zero Timestamp on the
// payload is stamped from the clock.
type Compactor struct {
	budget Budget
	clock  clockwork.Clock
	loc    *time.Location
}

// NewCompactor creates a Compactor. A nil loc renders in UTC.
func NewCompactor(budget Budget, clock clockwork.Clock, loc *time.Location) *Compactor {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Compactor{budget: budget, clock: clock, loc: loc}
}

// Budget returns the configured budget.
func (c *Compactor) Budget() Budget { return c.budget }

// Compact renders p under the compactor's budget.
func (c *Compactor) Compact(p Payload) Text {
	if p.Timestamp.IsZero() {
		p.Timestamp = c.clock.Now()
	}
	return Compact(p, c.budget, c.loc)
}

// Compact renders p, starting at the rich tier of the matching ladder and
// stepping down while the rendering exceeds b.Primary. If the last tier still
// exceeds b.Ceiling the body is cut to exactly b.Ceiling runes.
func Compact(p Payload, b Budget, loc *time.Location) Text {
	tier := TierRich
	if !p.Available {
		tier = TierUnavailableRich
	}

	body := render(tier, p, loc)
	for utf8.RuneCountInString(body) > b.Primary && tier.next() != tier {
		tier = tier.next()
		body = render(tier, p, loc)
	}

	t := Text{Body: body, Tier: tier}
	if b.Ceiling > 0 && utf8.RuneCountInString(body) > b.Ceiling {
		t.Body = truncateRunes(body, b.Ceiling)
		t.Truncated = true
	}
	t.Length = utf8.RuneCountInString(t.Body)
	t.Segments = Segments(t.Length)
	return t
}

// Segments estimates transport segments for a message of n runes.
func Segments(n int) int {
	return n/SegmentLength + 1
}

func render(tier Tier, p Payload, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	ts := p.Timestamp.In(loc).Format(timestampLayout)
	temp := formatReading(p.Temperature)

	var lines []string
	switch tier {
	case TierRich:
		lines = []string{
			"WayraFrost " + p.Class.Mark(),
			p.Class.Name(),
			"Ahora:" + temp + "C",
			fmt.Sprintf("12h:%sC 24h:%sC", forecastAt(p.Forecast, 12), forecastAt(p.Forecast, 24)),
			ts,
		}
	case TierPlain:
		lines = []string{
			"WayraFrost Alerta",
			"RIESGO: " + p.Class.Name(),
			"Temp: " + temp + "C",
			"12h: " + forecastAt(p.Forecast, 12) + "C",
			"24h: " + forecastAt(p.Forecast, 24) + "C",
			ts,
			"wayrafrost.app",
		}
	case TierUnavailableRich:
		lines = []string{
			"WayraFrost",
			"Temp:" + temp + "C",
			"Fuera de cobertura",
			fmt.Sprintf("%.0fkm de estacion", p.DistanceKm),
			ts,
		}
	case TierUnavailablePlain:
		lines = []string{
			"WayraFrost",
			"Temp: " + temp + "C",
			"FUERA DE COBERTURA",
			fmt.Sprintf("%.0fkm de estacion", p.DistanceKm),
			"Solo valido en Junin",
			ts,
		}
	}
	return strings.Join(lines, "\n")
}

// forecastAt returns the reading h hours ahead.
func forecastAt(forecast []*float64, h int) string {
	if h < 1 || len(forecast) < h {
		return unknownValue
	}
	return formatReading(forecast[h-1])
}

func formatReading(v *float64) string {
	if v == nil {
		return unknownValue
	}
	return fmt.Sprintf("%.1f", *v)
}

// truncateRunes cuts s to at most n runes without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
