// Package config defines the configuration structure for the WayraFrost
// services. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct tag defaults (Lowest)
//
// Any invalid value causes the process to exit on startup (fail fast).
package config

import (
	"time"

	"wayrafrost/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for credential fields.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"wayrafrost-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Station       StationConfig
	History       HistoryConfig
	Features      FeatureConfig
	Alerts        AlertConfig
	Weather       WeatherConfig
	Classifier    ClassifierConfig
	Advisory      AdvisoryConfig
	SMS           SMSConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"5000"`
	ReadHeaderTimeout  time.Duration `envconfig:"SERVER_READ_HEADER_TIMEOUT" default:"10s"`
	WriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout    time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"29s"`
	// AlertRateLimit caps alert requests per client address within
	// AlertRateWindow. Zero disables the limit.
	AlertRateLimit  int           `envconfig:"ALERT_RATE_LIMIT" default:"10" validate:"min=0"`
	AlertRateWindow time.Duration `envconfig:"ALERT_RATE_WINDOW" default:"1h"`
	// TrustedProxies lists the load balancer addresses (IPs or CIDRs) whose
	// X-Forwarded-For header is believed. Empty means no proxy is trusted
	// and clients are identified by their connection address.
	TrustedProxies []string `envconfig:"SERVER_TRUSTED_PROXIES" validate:"dive,ip|cidr"`
	// CatalogPath optionally points to a YAML file replacing the built-in
	// known-locations catalog.
	CatalogPath string `envconfig:"CATALOG_PATH"`
}

// StationConfig is the geofence reference point.
type StationConfig struct {
	Name        string  `envconfig:"STATION_NAME" default:"Estación LAMAR - Huayao, Junín"`
	Institution string  `envconfig:"STATION_INSTITUTION" default:"Observatorio Geofísico del IGP"`
	Latitude    float64 `envconfig:"STATION_LATITUDE" default:"-12.0383" validate:"min=-90,max=90"`
	Longitude   float64 `envconfig:"STATION_LONGITUDE" default:"-75.3228" validate:"min=-180,max=180"`
	Elevation   int     `envconfig:"STATION_ELEVATION" default:"3350"`
	RadiusKm    float64 `envconfig:"STATION_RADIUS_KM" default:"50" validate:"gt=0"`
}

// HistoryConfig bounds the in-memory observation history.
type HistoryConfig struct {
	Capacity int `envconfig:"HISTORY_CAPACITY" default:"24" validate:"min=1"`
	MaxKeys  int `envconfig:"HISTORY_MAX_KEYS" default:"10000" validate:"min=1"`
}

// FeatureConfig controls lag synthesis and the neutral defaults used when the
// weather provider omits a field.
type FeatureConfig struct {
	Horizons             []int   `envconfig:"FEATURE_HORIZONS" default:"6,12,24" validate:"min=1,dive,min=1"`
	DefaultHumidity      float64 `envconfig:"DEFAULT_HUMIDITY" default:"50" validate:"min=0,max=100"`
	DefaultIrradiance    float64 `envconfig:"DEFAULT_IRRADIANCE" default:"300" validate:"min=0"`
	DefaultWindSpeed     float64 `envconfig:"DEFAULT_WIND_SPEED" default:"0" validate:"min=0"`
	DefaultWindDirection float64 `envconfig:"DEFAULT_WIND_DIRECTION" default:"180" validate:"min=0,max=360"`
}

// AlertConfig holds the character budgets for rendered alerts.
type AlertConfig struct {
	PrimaryBudget int    `envconfig:"ALERT_PRIMARY_BUDGET" default:"160" validate:"min=1"`
	HardCeiling   int    `envconfig:"ALERT_HARD_CEILING" default:"1600" validate:"gtefield=PrimaryBudget"`
	Timezone      string `envconfig:"ALERT_TIMEZONE" default:"America/Lima" validate:"required"`
	CountryPrefix string `envconfig:"ALERT_COUNTRY_PREFIX" default:"+51"`
	PhoneDigits   int    `envconfig:"ALERT_PHONE_DIGITS" default:"9" validate:"min=1"`
}

// WeatherConfig configures the Open-Meteo collaborator.
type WeatherConfig struct {
	BaseURL       string        `envconfig:"OPEN_METEO_URL" default:"https://api.open-meteo.com" validate:"url"`
	CacheTTL      time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"10m"`
	Timeout       time.Duration `envconfig:"WEATHER_TIMEOUT" default:"15s"`
	ForecastHours int           `envconfig:"WEATHER_FORECAST_HOURS" default:"48" validate:"min=1,max=384"`
}

// ClassifierConfig configures the model-serving collaborator.
type ClassifierConfig struct {
	URL          string        `envconfig:"CLASSIFIER_URL" default:"http://localhost:8000" validate:"url"`
	Timeout      time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"10s"`
	ModelVersion string        `envconfig:"CLASSIFIER_MODEL_VERSION" default:"2.0_multiclass"`
}

// AdvisoryConfig configures the generative advisory collaborator. When the
// API key is empty the local rule advisor is used.
type AdvisoryConfig struct {
	GeminiAPIKey SecretString  `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GeminiURL    string        `envconfig:"GEMINI_URL" default:"https://generativelanguage.googleapis.com" validate:"url"`
	Timeout      time.Duration `envconfig:"GEMINI_TIMEOUT" default:"20s"`
}

// SMSConfig holds Twilio credentials. All three must be set for SMS delivery
// to be available.
type SMSConfig struct {
	TwilioAccountSID string       `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  SecretString `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string       `envconfig:"TWILIO_PHONE_NUMBER"`
	TwilioURL        string       `envconfig:"TWILIO_URL" default:"https://api.twilio.com" validate:"url"`
}

// AWSConfig holds queue identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// AlertQueueURL switches alert dispatch from synchronous Twilio delivery
	// to the SQS-backed alert worker.
	AlertQueueURL string `envconfig:"ALERT_QUEUE_URL" validate:"omitempty,url"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"WayraFrost"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// SMSAvailable reports whether Twilio credentials are fully configured.
func (c SMSConfig) SMSAvailable() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken.IsSet() && c.TwilioFromNumber != ""
}

// Station returns the configured reference station.
func (c StationConfig) Station() types.Station {
	return types.Station{
		Name:        c.Name,
		Institution: c.Institution,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		Elevation:   c.Elevation,
		RadiusKm:    c.RadiusKm,
	}
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
