package config

import (
	"errors"
	"testing"
	"time"
)

// setFullTestEnv sets a complete, valid environment. t.Setenv restores the
// previous values after the test.
func setFullTestEnv(t *testing.T) {
	t.Helper()

	t.Setenv("APP_ENV", "local")
	t.Setenv("SERVICE_NAME", "test-service")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "9090")

	t.Setenv("CLASSIFIER_URL", "http://classifier.test.local")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "twilio-secret")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15005550006")
	t.Setenv("GEMINI_API_KEY", "gemini-secret")
	t.Setenv("ALERT_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/alerts")
}

func TestLoadConfigLocalSuccess(t *testing.T) {
	setFullTestEnv(t)

	cfg, err := loadConfig(false)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "local")
	}
	if cfg.Service != "test-service" {
		t.Errorf("Service = %q, want %q", cfg.Service, "test-service")
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "9090")
	}
	if cfg.Classifier.URL != "http://classifier.test.local" {
		t.Errorf("Classifier.URL = %q", cfg.Classifier.URL)
	}

	// Secrets stay wrapped.
	if cfg.SMS.TwilioAuthToken.Unmask() != "twilio-secret" {
		t.Errorf("TwilioAuthToken.Unmask() = %q", cfg.SMS.TwilioAuthToken.Unmask())
	}
	if cfg.SMS.TwilioAuthToken.String() != "***REDACTED***" {
		t.Errorf("TwilioAuthToken.String() should be redacted, got %q", cfg.SMS.TwilioAuthToken.String())
	}
	if !cfg.SMS.SMSAvailable() {
		t.Error("SMSAvailable() should be true with all Twilio settings present")
	}
	if cfg.AWS.AlertQueueURL == "" {
		t.Error("AlertQueueURL should be populated")
	}
	if cfg.Build.Version != "dev" {
		t.Errorf("Build.Version = %q, want %q", cfg.Build.Version, "dev")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := loadConfig(false)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	station := cfg.Station.Station()
	if station.Latitude != -12.0383 || station.Longitude != -75.3228 {
		t.Errorf("station = (%v, %v), want Huayao", station.Latitude, station.Longitude)
	}
	if station.RadiusKm != 50 {
		t.Errorf("RadiusKm = %v, want 50", station.RadiusKm)
	}
	if station.Elevation != 3350 {
		t.Errorf("Elevation = %d, want 3350", station.Elevation)
	}
	if cfg.History.Capacity != 24 {
		t.Errorf("History.Capacity = %d, want 24", cfg.History.Capacity)
	}
	if cfg.History.MaxKeys != 10000 {
		t.Errorf("History.MaxKeys = %d, want 10000", cfg.History.MaxKeys)
	}
	if got := cfg.Features.Horizons; len(got) != 3 || got[0] != 6 || got[1] != 12 || got[2] != 24 {
		t.Errorf("Horizons = %v, want [6 12 24]", got)
	}
	if cfg.Features.DefaultHumidity != 50 {
		t.Errorf("DefaultHumidity = %v, want 50", cfg.Features.DefaultHumidity)
	}
	if cfg.Features.DefaultIrradiance != 300 {
		t.Errorf("DefaultIrradiance = %v, want 300", cfg.Features.DefaultIrradiance)
	}
	if cfg.Features.DefaultWindDirection != 180 {
		t.Errorf("DefaultWindDirection = %v, want 180", cfg.Features.DefaultWindDirection)
	}
	if cfg.Alerts.PrimaryBudget != 160 || cfg.Alerts.HardCeiling != 1600 {
		t.Errorf("budgets = %d/%d, want 160/1600", cfg.Alerts.PrimaryBudget, cfg.Alerts.HardCeiling)
	}
	if cfg.Weather.CacheTTL != 10*time.Minute {
		t.Errorf("Weather.CacheTTL = %v, want 10m", cfg.Weather.CacheTTL)
	}
	if cfg.SMS.SMSAvailable() {
		t.Error("SMSAvailable() should be false without credentials")
	}
	if cfg.Advisory.GeminiAPIKey.IsSet() {
		t.Error("GeminiAPIKey should be empty by default")
	}
}

func TestLoadConfigSetsUTC(t *testing.T) {
	setFullTestEnv(t)

	originalLocal := time.Local
	t.Cleanup(func() {
		time.Local = originalLocal
	})
	lima, _ := time.LoadLocation("America/Lima")
	time.Local = lima

	if _, err := loadConfig(false); err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	if time.Local != time.UTC {
		t.Errorf("time.Local = %v, want UTC", time.Local)
	}
}

func TestLoadConfigValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		wantType ConfigErrorType
	}{
		{"invalid environment", "APP_ENV", "moon", ErrValidation},
		{"invalid log level", "LOG_LEVEL", "chatty", ErrValidation},
		{"latitude out of range", "STATION_LATITUDE", "-95", ErrValidation},
		{"zero radius", "STATION_RADIUS_KM", "0", ErrValidation},
		{"ceiling below budget", "ALERT_HARD_CEILING", "100", ErrValidation},
		{"horizon beyond capacity", "FEATURE_HORIZONS", "6,12,48", ErrValidation},
		{"duplicate horizon", "FEATURE_HORIZONS", "6,6", ErrValidation},
		{"unknown timezone", "ALERT_TIMEZONE", "Mars/Olympus", ErrValidation},
		{"non numeric capacity", "HISTORY_CAPACITY", "lots", ErrParsing},
		{"bad queue url", "ALERT_QUEUE_URL", "not a url", ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFullTestEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := loadConfig(false)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Type != tt.wantType {
				t.Errorf("Type = %q, want %q (err: %v)", cfgErr.Type, tt.wantType, err)
			}
		})
	}
}

func TestConfigErrorFormat(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "failed", Err: inner}

	if err.Error() != "[PARSING_FAILED] failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}

	bare := &ConfigError{Type: ErrValidation, Message: "bad"}
	if bare.Error() != "[VALIDATION_FAILED] bad" {
		t.Errorf("Error() = %q", bare.Error())
	}
}
