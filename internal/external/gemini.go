package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"wayrafrost/internal/types"
)

const (
	geminiSource   = "gemini"
	geminiAPIBase  = "https://generativelanguage.googleapis.com"
	geminiModel    = "gemini-2.0-flash"
	geminiMaxHours = 10
)

// GeminiConfig configures a GeminiAdvisor.
type GeminiConfig struct {
	APIKey  types.SecretString
	Model   string
	BaseURL string
	Logger  *slog.Logger
}

// GeminiAdvisor asks the Gemini generative API for a frost assessment. When
// no API key is configured, or the call or its parsing fails, it returns the
// RuleAdvisor's assessment instead; Advise therefore never fails.
type GeminiAdvisor struct {
	base     *BaseClient
	apiKey   types.SecretString
	model    string
	baseURL  string
	logger   *slog.Logger
	fallback RuleAdvisor
}

// NewGeminiAdvisor creates a GeminiAdvisor.
func NewGeminiAdvisor(base *BaseClient, cfg GeminiConfig) *GeminiAdvisor {
	if cfg.Model == "" {
		cfg.Model = geminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GeminiAdvisor{
		base:    base,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  cfg.Logger,
	}
}

// Source reports which advisor answers by default.
func (g *GeminiAdvisor) Source() string {
	if g.apiKey.IsSet() {
		return SourceGemini
	}
	return SourceRules
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Advise returns Gemini's assessment for in, or the rule-based one.
func (g *GeminiAdvisor) Advise(ctx context.Context, in AdvisoryInput) (*Advice, error) {
	if !g.apiKey.IsSet() {
		return g.fallback.advise(in), nil
	}

	advice, err := g.generate(ctx, in)
	if err != nil {
		g.logger.WarnContext(ctx, "gemini advisory failed, using rules", "error", err)
		return g.fallback.advise(in), nil
	}
	return advice, nil
}

func (g *GeminiAdvisor) generate(ctx context.Context, in AdvisoryInput) (*Advice, error) {
	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: buildPrompt(in)}}}},
		GenerationConfig: geminiGenerationConfig{Temperature: 0.3, MaxOutputTokens: 2048},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode gemini request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create gemini request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey.Unmask())

	resp, err := g.base.Do(req)
	if err != nil {
		return nil, wrapError(geminiSource, types.ErrCodeUpstreamAdvisory, "GenerateContent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, responseError(g.logger, geminiSource, types.ErrCodeUpstreamAdvisory, "GenerateContent", resp)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAdvisory, "failed to decode gemini response", err)
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if text.Len() == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamAdvisory, "gemini returned no candidates", nil)
	}

	advice, err := ParseAdvice(text.String())
	if err != nil {
		return nil, err
	}
	advice.Source = SourceGemini
	return advice, nil
}

// ParseAdvice extracts the JSON assessment from model output. The object may
// be wrapped in a ```json fence, a bare fence, or surrounding prose.
func ParseAdvice(text string) (*Advice, error) {
	raw := extractJSON(text)

	var a Advice
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAdvisory, "gemini response is not valid JSON", err)
	}
	if a.Level == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamAdvisory, "gemini response has no risk level", nil)
	}
	return &a, nil
}

func extractJSON(text string) string {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		inner, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(inner)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		inner, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(inner)
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func buildPrompt(in AdvisoryInput) string {
	var (
		cur     types.CurrentWeather
		summary types.ForecastSummary
		elev    = "desconocida"
	)
	if in.Weather != nil {
		cur = in.Weather.Current
		summary = in.Weather.Summary
		if in.Weather.Elevation != nil {
			elev = fmt.Sprintf("%.0f", *in.Weather.Elevation)
		}
	}
	name := in.LocationName
	if name == "" {
		name = "ubicación"
	}

	var b strings.Builder
	b.WriteString("Eres un agrometeorólogo experto en heladas de zonas altoandinas. ")
	b.WriteString("Evalúa el riesgo de helada combinando las condiciones observadas, el pronóstico y la salida del modelo de clasificación.\n\n")

	fmt.Fprintf(&b, "## UBICACIÓN: %s\n- Elevación: %s m s.n.m.\n- Coordenadas: %.4f°, %.4f°\n\n", name, elev, in.Latitude, in.Longitude)

	b.WriteString("## CONDICIONES ACTUALES (Open-Meteo)\n")
	fmt.Fprintf(&b, "- Temperatura: %s°C\n", show(cur.Temperature))
	fmt.Fprintf(&b, "- Sensación térmica: %s°C\n", show(cur.ApparentTemperature))
	fmt.Fprintf(&b, "- Humedad relativa: %s%%\n", show(cur.Humidity))
	fmt.Fprintf(&b, "- Presión: %s hPa\n", show(cur.PressureMSL))
	fmt.Fprintf(&b, "- Viento: %s km/h, dirección %s°, ráfagas %s km/h\n", show(cur.WindSpeedKmh), show(cur.WindDirection), show(cur.WindGusts))
	fmt.Fprintf(&b, "- Nubosidad: %s%%\n", show(cur.CloudCover))
	fmt.Fprintf(&b, "- Precipitación: %s mm\n\n", show(cur.Precipitation))

	b.WriteString("## PRONÓSTICO NOCTURNO\n")
	fmt.Fprintf(&b, "- Horas nocturnas analizadas: %d\n", summary.NightHoursCount)
	fmt.Fprintf(&b, "- Horas con riesgo de helada: %d\n", summary.FrostRiskHoursCount)
	fmt.Fprintf(&b, "- Temperatura mínima: %s°C\n", show(summary.MinTemperature))
	fmt.Fprintf(&b, "- Temperatura mínima del suelo: %s°C\n\n", show(summary.MinSoilTemperature))

	if p := in.Prediction; p != nil {
		b.WriteString("## MODELO DE CLASIFICACIÓN\n")
		fmt.Fprintf(&b, "- Clase: %s (%s)\n", p.Class.Name(), p.Class.Level())
		fmt.Fprintf(&b, "- Probabilidad de helada: %.1f%%\n", p.FrostProbability()*100)
		fmt.Fprintf(&b, "- Confianza: %.1f%%\n\n", p.Confidence()*100)
	}

	b.WriteString("## HORAS CRÍTICAS\n")
	if len(summary.FrostRiskHours) == 0 {
		b.WriteString("No se detectaron horas con riesgo inmediato de helada.\n")
	}
	for i, h := range summary.FrostRiskHours {
		if i == geminiMaxHours {
			break
		}
		fmt.Fprintf(&b, "- %s: Temp=%s°C, Humedad=%s%%, Viento=%skm/h, Suelo=%s°C\n",
			h.Time, show(h.Temperature), show(h.Humidity), show(h.WindSpeedKmh), show(h.SoilTemperature0cm))
	}

	b.WriteString(`
Responde únicamente con un objeto JSON con esta estructura:
{
  "resumen_ejecutivo": "2-3 oraciones",
  "nivel_riesgo_combinado": "bajo|medio|alto|muy_alto",
  "probabilidad_estimada": 0-100,
  "confianza_analisis": "baja|media|alta",
  "factores_riesgo": [{"factor": "", "impacto": "bajo|medio|alto", "descripcion": ""}],
  "factores_proteccion": [{"factor": "", "impacto": "bajo|medio|alto", "descripcion": ""}],
  "horas_criticas": [{"hora": "HH:MM", "temperatura_esperada": 0, "riesgo": "bajo|medio|alto"}],
  "recomendaciones": [{"prioridad": 1, "accion": "", "urgencia": "inmediata|próximas_horas|preventiva"}],
  "analisis_meteorologico": "",
  "comparacion_modelo_apis": "",
  "tipo_helada_probable": "radiativa|advectiva|mixta|ninguna",
  "cultivos_vulnerables": []
}
Ajusta los umbrales a la elevación y prioriza la seguridad del agricultor.
`)
	return b.String()
}
