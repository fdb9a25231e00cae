// Package main is the entry point for the WayraFrost API server.
//
// It loads configuration, builds the collaborator clients, the observation
// history and the prediction pipeline, mounts the HTTP handlers on the core
// chassis (middleware, routing, health checks, metrics) and serves until an
// interrupt arrives.
//
// Alerts are delivered synchronously through Twilio unless ALERT_QUEUE_URL is
// set, in which case they are enqueued for the alert worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wayrafrost/internal/alerts"
	"wayrafrost/internal/api/handlers"
	"wayrafrost/internal/catalog"
	"wayrafrost/internal/config"
	"wayrafrost/internal/core"
	"wayrafrost/internal/external"
	"wayrafrost/internal/features"
	"wayrafrost/internal/geofence"
	"wayrafrost/internal/history"
	"wayrafrost/internal/notifications"
	"wayrafrost/internal/prediction"
	"wayrafrost/internal/telemetry"
	"wayrafrost/internal/types"
)

// schemaBindTimeout bounds the startup query of the classifier's features.
const schemaBindTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("wayrafrost API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	app, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	return runHTTPServer(app.server, cfg, logger)
}

// app is the wired API, kept separate from the listener so tests can drive
// the handler directly.
type app struct {
	server   *core.Server
	pipeline *prediction.Pipeline
	history  *history.Store
}

// buildApp wires every component from cfg. A classifier that is unreachable
// at startup is not fatal: the health probe keeps retrying the schema bind
// and predictions answer 503 until it succeeds.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...external.RegistryOption) (*app, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(promReg)

	clients := external.NewClientRegistry(cfg, logger, append([]external.RegistryOption{external.WithObserver(metrics)}, opts...)...)

	store := history.NewStore(
		history.WithCapacity(cfg.History.Capacity),
		history.WithMaxKeys(cfg.History.MaxKeys),
	)
	metrics.WatchHistory(store.Stats)

	fence := geofence.NewValidator(cfg.Station.Station())

	cat, err := catalog.Load(cfg.Server.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading locations catalog: %w", err)
	}

	pipeline := prediction.NewPipeline(prediction.Config{
		Weather:    clients.Weather,
		Classifier: clients.Classifier,
		Advisor:    clients.Advisor,
		History:    store,
		Geofence:   fence,
		Horizons:   cfg.Features.Horizons,
		Defaults: &features.Defaults{
			Humidity:      cfg.Features.DefaultHumidity,
			Irradiance:    cfg.Features.DefaultIrradiance,
			WindSpeed:     cfg.Features.DefaultWindSpeed,
			WindDirection: cfg.Features.DefaultWindDirection,
		},
		ModelVersion: cfg.Classifier.ModelVersion,
		Metrics:      metrics,
		Logger:       logger.With("component", "pipeline"),
	})

	bindCtx, cancel := context.WithTimeout(ctx, schemaBindTimeout)
	if err := pipeline.BindSchema(bindCtx); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeInternalFeatureSchema {
			cancel()
			return nil, fmt.Errorf("classifier feature schema: %w", err)
		}
		logger.Warn("classifier unreachable at startup, predictions unavailable until bound", "error", err)
	}
	cancel()

	alertService, err := newAlertService(ctx, cfg, clients, metrics, logger)
	if err != nil {
		return nil, err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	if cfg.Observability.EnableMetrics {
		srv.MetricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg})
	}
	srv.RateLimitStore = core.NewMemoryRateLimitStore(nil)
	srv.HealthProbes = []core.HealthProbe{
		core.ProbeFunc{ProbeName: "classifier", Fn: func(ctx context.Context) error {
			if pipeline.Bound() {
				return nil
			}
			return pipeline.BindSchema(ctx)
		}},
	}
	srv.HealthInfo = func() map[string]any {
		return map[string]any{
			"model_loaded":      pipeline.Bound(),
			"model_version":     pipeline.ModelVersion(),
			"station":           cfg.Station.Name,
			"coverage_radius":   cfg.Station.RadiusKm,
			"advisor":           clients.Advisor.Source(),
			"sms_available":     alertService.Available(),
			"history_locations": store.Len(),
			"history_capacity":  store.Capacity(),
			"breakers":          clients.Breakers(),
		}
	}

	val := srv.Validator
	frost := handlers.NewFrostHandler(pipeline, fence, cat, val, logger.With("handler", "frost"))
	alertHandler := handlers.NewAlertHandler(alertService, val, logger.With("handler", "alerts"), srv.RateLimit)
	weather := handlers.NewWeatherHandler(clients.Weather, cat, val, logger.With("handler", "weather"))
	srv.APIRouteRegistrars = append(srv.APIRouteRegistrars, frost.RegisterRoutes, weather.RegisterRoutes, alertHandler.RegisterRoutes)

	srv.MountRoutes()

	return &app{server: srv, pipeline: pipeline, history: store}, nil
}

// newAlertService builds the alert service. With a queue URL alerts are
// published to SQS; otherwise they go straight to the SMS sender.
func newAlertService(
	ctx context.Context,
	cfg *config.Config,
	clients *external.ClientRegistry,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) (*alerts.Service, error) {
	loc, err := time.LoadLocation(cfg.Alerts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading alert timezone %q: %w", cfg.Alerts.Timezone, err)
	}

	svcCfg := alerts.ServiceConfig{
		Compactor: alerts.NewCompactor(alerts.Budget{
			Primary: cfg.Alerts.PrimaryBudget,
			Ceiling: cfg.Alerts.HardCeiling,
		}, nil, loc),
		Sender:  clients.SMS,
		Weather: clients.Weather,
		Metrics: metrics,
		Phone: alerts.PhoneRules{
			CountryPrefix: cfg.Alerts.CountryPrefix,
			Digits:        cfg.Alerts.PhoneDigits,
		},
		Logger: logger.With("component", "alerts"),
	}

	if cfg.AWS.AlertQueueURL != "" {
		sqsClient, err := newSQSClient(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		svcCfg.Publisher = notifications.NewAlertPublisher(sqsClient, cfg.AWS.AlertQueueURL,
			types.NewSlogAdapter(logger.With("component", "alert_publisher")))
		logger.Info("alerts dispatched through queue", "queue_url", cfg.AWS.AlertQueueURL)
	} else if !cfg.SMS.SMSAvailable() {
		logger.Warn("Twilio credentials not set, SMS alerts unavailable")
	}

	return alerts.NewService(svcCfg), nil
}

func newSQSClient(ctx context.Context, awsCfg config.AWSConfig) (*sqs.Client, error) {
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsCfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	return sqs.NewFromConfig(sdkCfg, func(o *sqs.Options) {
		if awsCfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(awsCfg.EndpointURL)
		}
	}), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
