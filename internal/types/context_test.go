package types

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("empty context: got %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %q, want %q", got, "req-123")
	}
}

func TestTraceIDFallsBackToRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := GetTraceID(ctx); got != "req-1" {
		t.Errorf("GetTraceID without trace = %q, want req-1", got)
	}

	ctx = WithTraceID(ctx, "trace-9")
	if got := GetTraceID(ctx); got != "trace-9" {
		t.Errorf("GetTraceID = %q, want trace-9", got)
	}
}

func TestWeatherDescription(t *testing.T) {
	code := 0
	if got := WeatherDescription(&code); got != "Cielo despejado" {
		t.Errorf("code 0 = %q", got)
	}
	unknown := 42
	if got := WeatherDescription(&unknown); got != "Código desconocido: 42" {
		t.Errorf("code 42 = %q", got)
	}
	if got := WeatherDescription(nil); got != "Desconocido" {
		t.Errorf("nil code = %q", got)
	}
	if !FrostFavorable(&code) {
		t.Error("clear sky should favour frost")
	}
	cloudy := 3
	if FrostFavorable(&cloudy) {
		t.Error("overcast sky should not favour frost")
	}
}
