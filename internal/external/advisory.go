package external

import (
	"context"
	"fmt"

	"wayrafrost/internal/risk"
	"wayrafrost/internal/types"
)

// Advice sources.
const (
	SourceGemini = "gemini"
	SourceRules  = "fallback_rules"
)

const (
	maxCriticalHours = 8
	chartHours       = 24
)

// Factor is a condition that raises or lowers frost risk.
type Factor struct {
	Factor      string `json:"factor"`
	Impact      string `json:"impacto"`
	Description string `json:"descripcion"`
}

// Recommendation is a suggested action for the farmer.
type Recommendation struct {
	Priority int    `json:"prioridad"`
	Action   string `json:"accion"`
	Urgency  string `json:"urgencia"`
}

// CriticalHour is a forecast hour singled out as risky.
type CriticalHour struct {
	Hour        string  `json:"hora"`
	Date        string  `json:"fecha,omitempty"`
	Temperature float64 `json:"temperatura_esperada"`
	Risk        string  `json:"riesgo"`
}

// TemperatureChart is the hourly temperature series for display.
type TemperatureChart struct {
	Labels       []string  `json:"etiquetas"`
	Temperatures []float64 `json:"temperaturas"`
	FrostLine    float64   `json:"linea_helada"`
}

// Advice is an advisory assessment. Level is free text as returned by the
// advisor; use Class to map it onto the risk scale.
type Advice struct {
	Source            string            `json:"source"`
	Summary           string            `json:"resumen_ejecutivo"`
	Level             string            `json:"nivel_riesgo_combinado"`
	EstimatedPercent  float64           `json:"probabilidad_estimada"`
	Confidence        string            `json:"confianza_analisis"`
	RiskFactors       []Factor          `json:"factores_riesgo"`
	ProtectiveFactors []Factor          `json:"factores_proteccion"`
	CriticalHours     []CriticalHour    `json:"horas_criticas"`
	Recommendations   []Recommendation  `json:"recomendaciones"`
	WeatherAnalysis   string            `json:"analisis_meteorologico,omitempty"`
	ModelComparison   string            `json:"comparacion_modelo_apis,omitempty"`
	FrostType         string            `json:"tipo_helada_probable"`
	VulnerableCrops   []string          `json:"cultivos_vulnerables"`
	TemperatureChart  *TemperatureChart `json:"grafico_temperatura,omitempty"`
}

// Class maps Level onto the risk scale. An unrecognized level reports false.
func (a *Advice) Class() (risk.Class, bool) {
	if a == nil {
		return risk.NoRisk, false
	}
	return risk.ParseLevel(a.Level)
}

// AdvisoryInput is what an advisor sees for one prediction.
type AdvisoryInput struct {
	LocationName string
	Latitude     float64
	Longitude    float64
	Weather      *types.FrostRiskData
	Prediction   *Prediction
}

func (in AdvisoryInput) frostProbability() float64 {
	if in.Prediction == nil {
		return 0
	}
	return in.Prediction.FrostProbability()
}

// RuleAdvisor derives advice from thresholds over the forecast and the
// classifier output. It never fails.
type RuleAdvisor struct{}

// Source returns SourceRules.
func (RuleAdvisor) Source() string { return SourceRules }

// Advise implements the rule-based assessment.
func (r RuleAdvisor) Advise(_ context.Context, in AdvisoryInput) (*Advice, error) {
	return r.advise(in), nil
}

func (RuleAdvisor) advise(in AdvisoryInput) *Advice {
	var (
		cur     types.CurrentWeather
		summary types.ForecastSummary
		hourly  []types.HourlyPoint
	)
	if in.Weather != nil {
		cur = in.Weather.Current
		summary = in.Weather.Summary
		hourly = in.Weather.Hourly
	}
	mlProb := in.frostProbability()

	level, percent := RuleLevel(summary.MinTemperature, summary.FrostRiskHoursCount, mlProb)
	riskFactors, protective := assessFactors(cur)

	return &Advice{
		Source: SourceRules,
		Summary: fmt.Sprintf(
			"Análisis basado en reglas meteorológicas. Nivel de riesgo: %s. Se detectaron %d horas con potencial riesgo de helada en el pronóstico.",
			level, summary.FrostRiskHoursCount),
		Level:             string(level),
		EstimatedPercent:  percent,
		Confidence:        "media",
		RiskFactors:       riskFactors,
		ProtectiveFactors: protective,
		CriticalHours:     criticalHours(summary.FrostRiskHours),
		Recommendations:   recommendationsFor(level),
		WeatherAnalysis: fmt.Sprintf(
			"Condiciones actuales: Temp %s°C, Humedad %s%%, Nubes %s%%, Viento %skm/h. Temperatura mínima pronosticada: %s°C.",
			show(cur.Temperature), show(cur.Humidity), show(cur.CloudCover), show(cur.WindSpeedKmh), show(summary.MinTemperature)),
		ModelComparison: fmt.Sprintf(
			"El modelo predice %.1f%% de probabilidad de helada. El pronóstico muestra %d horas con riesgo.",
			mlProb*100, summary.FrostRiskHoursCount),
		FrostType:        FrostType(cur.CloudCover, cur.WindSpeedKmh),
		VulnerableCrops:  []string{"Papa", "Quinua", "Haba", "Maíz", "Cebada"},
		TemperatureChart: temperatureChart(hourly),
	}
}

// RuleLevel returns the rule-based level and estimated probability (percent)
// from the forecast minimum, the frost-hour count and the classifier's frost
// probability.
func RuleLevel(minTemp *float64, frostHours int, mlProb float64) (risk.Level, float64) {
	switch {
	case minTemp != nil && *minTemp < -2:
		return risk.LevelVeryHigh, 90
	case minTemp != nil && *minTemp < 0:
		return risk.LevelHigh, 75
	case frostHours > 3 || mlProb > 0.6:
		return risk.LevelHigh, float64(int(mlProb * 100))
	case frostHours > 0 || mlProb > 0.3:
		return risk.LevelMedium, float64(int(mlProb * 100))
	default:
		return risk.LevelLow, float64(int(mlProb * 100))
	}
}

// FrostType classifies the likely frost mechanism. Missing readings assume
// 50% cloud cover and 5 km/h wind.
func FrostType(cloudCover, windKmh *float64) string {
	cloud, wind := 50.0, 5.0
	if cloudCover != nil {
		cloud = *cloudCover
	}
	if windKmh != nil {
		wind = *windKmh
	}
	switch {
	case cloud < 30 && wind < 10:
		return "radiativa"
	case wind > 20:
		return "advectiva"
	default:
		return "mixta"
	}
}

func assessFactors(cur types.CurrentWeather) (riskFactors, protective []Factor) {
	riskFactors, protective = []Factor{}, []Factor{}

	if t := cur.Temperature; t != nil {
		switch {
		case *t < 0:
			riskFactors = append(riskFactors, Factor{"Temperatura bajo cero", "alto",
				fmt.Sprintf("Temperatura actual de %.1f°C indica condiciones de helada activa", *t)})
		case *t < 4:
			riskFactors = append(riskFactors, Factor{"Temperatura cercana a cero", "alto",
				fmt.Sprintf("Temperatura de %.1f°C cerca del umbral de helada", *t)})
		case *t < 8:
			riskFactors = append(riskFactors, Factor{"Temperatura baja", "medio",
				fmt.Sprintf("Temperatura de %.1f°C podría descender durante la noche", *t)})
		default:
			protective = append(protective, Factor{"Temperatura moderada", "medio",
				fmt.Sprintf("Temperatura de %.1f°C proporciona margen de seguridad", *t)})
		}
	}

	if c := cur.CloudCover; c != nil {
		switch {
		case *c < 20:
			riskFactors = append(riskFactors, Factor{"Cielo despejado", "alto",
				"Pérdida de calor por radiación máxima"})
		case *c > 70:
			protective = append(protective, Factor{"Cobertura de nubes", "alto",
				fmt.Sprintf("%.0f%% de nubes actúa como aislante térmico", *c)})
		}
	}

	if w := cur.WindSpeedKmh; w != nil {
		switch {
		case *w < 5:
			riskFactors = append(riskFactors, Factor{"Viento muy bajo", "medio",
				"Aire estancado favorece enfriamiento superficial"})
		case *w > 15:
			protective = append(protective, Factor{"Viento moderado", "medio",
				"Mezcla de aire previene inversión térmica"})
		}
	}

	if h := cur.Humidity; h != nil && *h > 80 {
		riskFactors = append(riskFactors, Factor{"Humedad alta", "medio",
			fmt.Sprintf("Humedad de %.0f%% aumenta riesgo de escarcha", *h)})
	}
	return riskFactors, protective
}

func recommendationsFor(level risk.Level) []Recommendation {
	switch level {
	case risk.LevelHigh, risk.LevelVeryHigh:
		return []Recommendation{
			{1, "Activar sistemas de protección antiheladas inmediatamente", "inmediata"},
			{2, "Verificar sistemas de riego para posible uso de agua como protección", "próximas_horas"},
			{3, "Cubrir cultivos sensibles con mantas térmicas o plásticos", "próximas_horas"},
			{4, "Monitorear temperatura cada hora durante la noche", "inmediata"},
		}
	case risk.LevelMedium:
		return []Recommendation{
			{1, "Preparar sistemas de protección para posible activación", "próximas_horas"},
			{2, "Mantener vigilancia durante horas de madrugada (3-6 AM)", "preventiva"},
			{3, "Verificar estado de cultivos más sensibles", "próximas_horas"},
		}
	default:
		return []Recommendation{
			{1, "Mantener monitoreo rutinario de condiciones", "preventiva"},
			{2, "Revisar pronóstico para días siguientes", "preventiva"},
		}
	}
}

func criticalHours(frostHours []types.HourlyPoint) []CriticalHour {
	out := []CriticalHour{}
	for _, h := range frostHours {
		if len(out) == maxCriticalHours {
			break
		}
		t, ok := parseLocal(h.Time)
		if !ok || h.Temperature == nil {
			continue
		}
		temp := *h.Temperature
		level := "bajo"
		switch {
		case temp < 0:
			level = "alto"
		case temp < FrostThresholdC:
			level = "medio"
		}
		out = append(out, CriticalHour{
			Hour:        t.Format("15:04"),
			Date:        t.Format("2006-01-02"),
			Temperature: temp,
			Risk:        level,
		})
	}
	return out
}

func temperatureChart(hourly []types.HourlyPoint) *TemperatureChart {
	chart := &TemperatureChart{Labels: []string{}, Temperatures: []float64{}}
	for i, h := range hourly {
		if i == chartHours {
			break
		}
		t, ok := parseLocal(h.Time)
		if !ok || h.Temperature == nil {
			continue
		}
		chart.Labels = append(chart.Labels, t.Format("15:04"))
		chart.Temperatures = append(chart.Temperatures, *h.Temperature)
	}
	return chart
}

func show(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}
