package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wayrafrost/internal/risk"
	"wayrafrost/internal/types"
)

func TestRuleLevel(t *testing.T) {
	f := types.Float
	tests := []struct {
		name       string
		minTemp    *float64
		frostHours int
		mlProb     float64
		level      risk.Level
		percent    float64
	}{
		{"severe minimum", f(-2.1), 0, 0, risk.LevelVeryHigh, 90},
		{"minimum at -2 is not severe", f(-2), 0, 0, risk.LevelHigh, 75},
		{"below zero", f(-0.1), 0, 0.1, risk.LevelHigh, 75},
		{"many frost hours", f(1), 4, 0.1, risk.LevelHigh, 10},
		{"high model probability", f(5), 0, 0.61, risk.LevelHigh, 61},
		{"some frost hours", f(1), 1, 0, risk.LevelMedium, 0},
		{"moderate probability", nil, 0, 0.31, risk.LevelMedium, 31},
		{"calm", f(6), 0, 0.3, risk.LevelLow, 30},
		{"no forecast", nil, 0, 0, risk.LevelLow, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, percent := RuleLevel(tt.minTemp, tt.frostHours, tt.mlProb)
			if level != tt.level {
				t.Errorf("level = %s, want %s", level, tt.level)
			}
			if percent != tt.percent {
				t.Errorf("percent = %v, want %v", percent, tt.percent)
			}
		})
	}
}

func TestFrostType(t *testing.T) {
	f := types.Float
	if got := FrostType(f(10), f(5)); got != "radiativa" {
		t.Errorf("clear and calm: got %s", got)
	}
	if got := FrostType(f(80), f(25)); got != "advectiva" {
		t.Errorf("windy: got %s", got)
	}
	if got := FrostType(f(60), f(12)); got != "mixta" {
		t.Errorf("overcast, moderate wind: got %s", got)
	}
	if got := FrostType(nil, nil); got != "mixta" {
		t.Errorf("no readings: got %s", got)
	}
}

func frostyInput() AdvisoryInput {
	f := types.Float
	return AdvisoryInput{
		LocationName: "Huancayo",
		Latitude:     -12.0651,
		Longitude:    -75.2049,
		Weather: &types.FrostRiskData{
			Current: types.CurrentWeather{Temperature: f(1.5), Humidity: f(85), CloudCover: f(5), WindSpeedKmh: f(3)},
			Summary: types.ForecastSummary{
				MinTemperature:      f(-3),
				FrostRiskHoursCount: 2,
				FrostRiskHours: []types.HourlyPoint{
					{Time: "2026-06-21T04:00", Temperature: f(-3)},
					{Time: "2026-06-21T05:00", Temperature: f(1)},
				},
			},
			Hourly: []types.HourlyPoint{
				{Time: "2026-06-20T12:00", Temperature: f(12)},
				{Time: "2026-06-20T13:00"},
			},
		},
		Prediction: &Prediction{Class: risk.Risk, Probabilities: []float64{0.4, 0.4, 0.1, 0.1}},
	}
}

func TestRuleAdvisor_Advise(t *testing.T) {
	advice, err := RuleAdvisor{}.Advise(context.Background(), frostyInput())
	if err != nil {
		t.Fatalf("rule advisor must not fail, got %v", err)
	}

	if advice.Source != SourceRules {
		t.Errorf("source = %s", advice.Source)
	}
	if advice.Level != "muy_alto" || advice.EstimatedPercent != 90 {
		t.Errorf("level = %s (%v%%), want muy_alto (90%%)", advice.Level, advice.EstimatedPercent)
	}
	if cls, ok := advice.Class(); !ok || cls != risk.Severe {
		t.Errorf("Class() = %v, %v", cls, ok)
	}
	if len(advice.Recommendations) != 4 {
		t.Errorf("expected 4 recommendations for very high risk, got %d", len(advice.Recommendations))
	}
	if advice.FrostType != "radiativa" {
		t.Errorf("frost type = %s", advice.FrostType)
	}
	if len(advice.RiskFactors) != 4 {
		t.Errorf("expected 4 risk factors (near zero, clear, calm, humid), got %d", len(advice.RiskFactors))
	}
	if len(advice.CriticalHours) != 2 || advice.CriticalHours[0].Risk != "alto" || advice.CriticalHours[1].Risk != "medio" {
		t.Errorf("unexpected critical hours %+v", advice.CriticalHours)
	}
	if advice.CriticalHours[0].Hour != "04:00" || advice.CriticalHours[0].Date != "2026-06-21" {
		t.Errorf("unexpected critical hour formatting %+v", advice.CriticalHours[0])
	}
	if advice.TemperatureChart == nil || len(advice.TemperatureChart.Labels) != 1 {
		t.Errorf("chart should skip hours without temperature: %+v", advice.TemperatureChart)
	}
	if len(advice.VulnerableCrops) != 5 {
		t.Errorf("unexpected crops %v", advice.VulnerableCrops)
	}
}

func TestRuleAdvisor_RecommendationsByLevel(t *testing.T) {
	counts := map[risk.Level]int{
		risk.LevelLow:      2,
		risk.LevelMedium:   3,
		risk.LevelHigh:     4,
		risk.LevelVeryHigh: 4,
	}
	for level, want := range counts {
		if got := len(recommendationsFor(level)); got != want {
			t.Errorf("%s: %d recommendations, want %d", level, got, want)
		}
	}
}

func TestRuleAdvisor_NilWeather(t *testing.T) {
	advice, err := RuleAdvisor{}.Advise(context.Background(), AdvisoryInput{})
	if err != nil {
		t.Fatal(err)
	}
	if advice.Level != "bajo" {
		t.Errorf("expected bajo without data, got %s", advice.Level)
	}
}

func TestAdvice_ClassUnknownLevel(t *testing.T) {
	a := &Advice{Level: "extremo"}
	if _, ok := a.Class(); ok {
		t.Error("unknown level should not map to a class")
	}
	var nilAdvice *Advice
	if _, ok := nilAdvice.Class(); ok {
		t.Error("nil advice should not map to a class")
	}
}

func TestParseAdvice(t *testing.T) {
	obj := `{"nivel_riesgo_combinado":"alto","resumen_ejecutivo":"Riesgo alto","confianza_analisis":"alta","probabilidad_estimada":70,"recomendaciones":[{"prioridad":1,"accion":"Cubrir","urgencia":"inmediata"}]}`

	tests := map[string]string{
		"bare":          obj,
		"json fence":    "Aquí el análisis:\n```json\n" + obj + "\n```\nFin.",
		"plain fence":   "```\n" + obj + "\n```",
		"with prose":    "Análisis: " + obj + " gracias",
		"leading space": "\n\n  " + obj,
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			a, err := ParseAdvice(text)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if a.Level != "alto" || a.Summary != "Riesgo alto" || a.EstimatedPercent != 70 {
				t.Errorf("unexpected advice %+v", a)
			}
			if len(a.Recommendations) != 1 || a.Recommendations[0].Action != "Cubrir" {
				t.Errorf("unexpected recommendations %+v", a.Recommendations)
			}
		})
	}
}

func TestParseAdvice_Errors(t *testing.T) {
	for name, text := range map[string]string{
		"not json": "No puedo responder.",
		"no level": `{"resumen_ejecutivo":"sin nivel"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAdvice(text)
			if appErr := asAppError(t, err); appErr.Code != types.ErrCodeUpstreamAdvisory {
				t.Errorf("expected %s, got %s", types.ErrCodeUpstreamAdvisory, appErr.Code)
			}
		})
	}
}

func geminiReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func newTestGemini(t *testing.T, url string, key string) *GeminiAdvisor {
	t.Helper()
	return NewGeminiAdvisor(newTestBase(t, NoRetryPolicy(), WithFailureCode(types.ErrCodeUpstreamAdvisory)), GeminiConfig{
		APIKey:  types.SecretString(key),
		Model:   "gemini-test",
		BaseURL: url,
		Logger:  testLogger(),
	})
}

func TestGeminiAdvise_Success(t *testing.T) {
	var req geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		fmt.Fprint(w, geminiReply("```json\n{\"nivel_riesgo_combinado\":\"medio\",\"resumen_ejecutivo\":\"Vigilar\"}\n```"))
	}))
	defer server.Close()

	advice, err := newTestGemini(t, server.URL, "secret").Advise(context.Background(), frostyInput())
	if err != nil {
		t.Fatal(err)
	}
	if advice.Source != SourceGemini || advice.Level != "medio" {
		t.Errorf("unexpected advice %+v", advice)
	}
	if req.GenerationConfig.Temperature != 0.3 || req.GenerationConfig.MaxOutputTokens != 2048 {
		t.Errorf("unexpected generation config %+v", req.GenerationConfig)
	}
	prompt := req.Contents[0].Parts[0].Text
	for _, want := range []string{"Huancayo", "Temperatura: 1.5°C", "Horas con riesgo de helada: 2", "nivel_riesgo_combinado"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGeminiAdvise_FallsBackToRules(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"forbidden": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
		"no candidates": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"candidates":[]}`)
		},
		"prose reply": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, geminiReply("Lo siento, no puedo analizar esto."))
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			advice, err := newTestGemini(t, server.URL, "secret").Advise(context.Background(), frostyInput())
			if err != nil {
				t.Fatalf("advisor must not fail, got %v", err)
			}
			if advice.Source != SourceRules || advice.Level != "muy_alto" {
				t.Errorf("expected rule fallback, got %s/%s", advice.Source, advice.Level)
			}
		})
	}
}

func TestGeminiAdvise_NoKeyUsesRules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an API key")
	}))
	defer server.Close()

	g := newTestGemini(t, server.URL, "")
	if g.Source() != SourceRules {
		t.Errorf("Source() = %s", g.Source())
	}
	advice, err := g.Advise(context.Background(), frostyInput())
	if err != nil || advice.Source != SourceRules {
		t.Errorf("expected rules, got %v %v", advice, err)
	}
}
