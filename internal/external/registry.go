package external

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"wayrafrost/internal/config"
	"wayrafrost/internal/types"
)

// ClientRegistry holds the collaborator clients built from configuration.
// It is the single point of access for the rest of the application to the
// weather provider, the classifier, the advisor and the SMS transport.
type ClientRegistry struct {
	Weather    *OpenMeteoClient
	Classifier *ClassifierClient
	Advisor    Advisor
	SMS        types.SMSSender

	bases []*BaseClient
}

// RegistryOption is a functional option for configuring a ClientRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	observer Observer
	clock    clockwork.Clock
	sleep    func(time.Duration)
}

// WithObserver reports collaborator calls and cache lookups to o.
func WithObserver(o Observer) RegistryOption {
	return func(rc *registryConfig) { rc.observer = o }
}

// WithClock replaces the clock used for cache expiry and latency.
func WithClock(c clockwork.Clock) RegistryOption {
	return func(rc *registryConfig) { rc.clock = c }
}

// WithRetrySleep replaces the sleep between retries of every client.
func WithRetrySleep(fn func(time.Duration)) RegistryOption {
	return func(rc *registryConfig) { rc.sleep = fn }
}

// NewClientRegistry builds every collaborator client with its own breaker
// and timeout. Without a Gemini API key the rule advisor is used.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &registryConfig{
		observer: nopObserver{},
		clock:    clockwork.NewRealClock(),
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(rc)
	}

	reg := &ClientRegistry{}

	weatherBase := NewBaseClient(&http.Client{Timeout: cfg.Weather.Timeout}, "open-meteo", DefaultRetryPolicy(),
		WithFailureCode(types.ErrCodeUpstreamWeather),
		WithSleepFunc(rc.sleep),
	)
	reg.Weather = NewOpenMeteoClient(weatherBase, OpenMeteoConfig{
		BaseURL:       cfg.Weather.BaseURL,
		CacheTTL:      cfg.Weather.CacheTTL,
		ForecastHours: cfg.Weather.ForecastHours,
		Clock:         rc.clock,
		Logger:        logger.With("client", "open-meteo"),
		Observer:      rc.observer,
	})

	classifierBase := NewBaseClient(&http.Client{Timeout: cfg.Classifier.Timeout}, "classifier", DefaultRetryPolicy(),
		WithFailureCode(types.ErrCodeUpstreamClassifier),
		WithSleepFunc(rc.sleep),
	)
	reg.Classifier = NewClassifierClient(classifierBase, cfg.Classifier.URL, logger.With("client", "classifier"))

	reg.bases = append(reg.bases, weatherBase, classifierBase)

	if cfg.Advisory.GeminiAPIKey.IsSet() {
		geminiBase := NewBaseClient(&http.Client{Timeout: cfg.Advisory.Timeout}, "gemini", DefaultRetryPolicy(),
			WithFailureCode(types.ErrCodeUpstreamAdvisory),
			WithSleepFunc(rc.sleep),
		)
		reg.Advisor = NewGeminiAdvisor(geminiBase, GeminiConfig{
			APIKey:  cfg.Advisory.GeminiAPIKey,
			Model:   cfg.Advisory.GeminiModel,
			BaseURL: cfg.Advisory.GeminiURL,
			Logger:  logger.With("client", "gemini"),
		})
		reg.bases = append(reg.bases, geminiBase)
	} else {
		logger.Info("GEMINI_API_KEY not set, using rule advisor")
		reg.Advisor = RuleAdvisor{}
	}

	smsBase := NewBaseClient(&http.Client{Timeout: 10 * time.Second}, twilioSource, NoRetryPolicy(),
		WithFailureCode(types.ErrCodeUpstreamSMS),
		WithSleepFunc(rc.sleep),
	)
	reg.SMS = NewTwilioSenderWithBase(smsBase, TwilioConfig{
		AccountSID: cfg.SMS.TwilioAccountSID,
		AuthToken:  cfg.SMS.TwilioAuthToken,
		From:       cfg.SMS.TwilioFromNumber,
		BaseURL:    cfg.SMS.TwilioURL,
		Logger:     logger.With("client", "twilio"),
	})
	reg.bases = append(reg.bases, smsBase)

	return reg
}

// Breakers reports the circuit breaker state of every client by name.
func (r *ClientRegistry) Breakers() map[string]string {
	out := make(map[string]string, len(r.bases))
	for _, b := range r.bases {
		out[b.Name()] = b.State().String()
	}
	return out
}
