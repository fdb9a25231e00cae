// Package telemetry exposes the API's Prometheus metrics.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wayrafrost/internal/history"
)

const namespace = "wayrafrost"

// Prediction outcomes.
const (
	OutcomeAvailable     = "available"
	OutcomeOutOfCoverage = "out_of_coverage"
	OutcomeError         = "error"
)

// Metrics holds the Prometheus counters, histograms and gauges for the API.
type Metrics struct {
	reg prometheus.Registerer

	Predictions        *prometheus.CounterVec // labels: outcome={available,out_of_coverage,error}
	PredictionDuration prometheus.Histogram
	RiskDecisions      *prometheus.CounterVec   // labels: class, state
	ExternalCalls      *prometheus.CounterVec   // labels: provider, operation, outcome={success,error}
	ExternalDuration   *prometheus.HistogramVec // labels: provider
	WeatherCache       *prometheus.CounterVec   // labels: result={hit,miss}
	Alerts             *prometheus.CounterVec   // labels: tier, truncated
	AlertDispatches    *prometheus.CounterVec   // labels: mode={sent,queued}, outcome={success,error}
	HTTPRequests       *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration       *prometheus.HistogramVec // labels: route
}

// NewMetrics creates all API metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "End-to-end duration of a prediction request.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		RiskDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_decisions_total",
			Help:      "Reconciled risk decisions by class and reconciliation state.",
		}, []string{"class", "state"}),
		ExternalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Collaborator calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		ExternalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Collaborator call duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_rendered_total",
			Help:      "Rendered alerts by tier and truncation.",
		}, []string{"tier", "truncated"}),
		AlertDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_dispatches_total",
			Help:      "Alert dispatches by mode and outcome.",
		}, []string{"mode", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.Predictions,
		m.PredictionDuration,
		m.RiskDecisions,
		m.ExternalCalls,
		m.ExternalDuration,
		m.WeatherCache,
		m.Alerts,
		m.AlertDispatches,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// WatchHistory exports the history store's size and counters, read at
// scrape time.
func (m *Metrics) WatchHistory(stats func() history.Stats) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_locations",
			Help:      "Locations currently held in the observation history.",
		}, func() float64 { return float64(stats().Keys) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evicted_locations_total",
			Help:      "Locations evicted from the observation history.",
		}, func() float64 { return float64(stats().EvictedKeys) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_rejected_observations_total",
			Help:      "Observations rejected for arriving out of order.",
		}, func() float64 { return float64(stats().Rejected) }),
	)
}

// RecordPrediction counts a prediction request and its duration.
func (m *Metrics) RecordPrediction(outcome string, elapsed time.Duration) {
	m.Predictions.WithLabelValues(outcome).Inc()
	m.PredictionDuration.Observe(elapsed.Seconds())
}

// RecordDecision counts a reconciled decision.
func (m *Metrics) RecordDecision(class, state string) {
	m.RiskDecisions.WithLabelValues(class, state).Inc()
}

// ObserveCall records a collaborator call.
func (m *Metrics) ObserveCall(provider, operation string, err error, elapsed time.Duration) {
	m.ExternalCalls.WithLabelValues(provider, operation, outcome(err == nil)).Inc()
	m.ExternalDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveCache records a weather cache lookup.
func (m *Metrics) ObserveCache(_ string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.WeatherCache.WithLabelValues(result).Inc()
}

// RecordAlert counts a rendered alert.
func (m *Metrics) RecordAlert(tier string, truncated bool) {
	m.Alerts.WithLabelValues(tier, strconv.FormatBool(truncated)).Inc()
}

// RecordDispatch counts an alert dispatch.
func (m *Metrics) RecordDispatch(mode string, ok bool) {
	m.AlertDispatches.WithLabelValues(mode, outcome(ok)).Inc()
}

// ObserveHTTP records a served request. route is the matched pattern, not
// the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
