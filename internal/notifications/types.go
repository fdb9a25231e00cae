// Package notifications provides the queue-backed SMS delivery path: the
// message envelope, the SQS publisher used by the API and the retry and
// metrics plumbing used by the alert worker.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChannelSMS is the only delivery channel.
const ChannelSMS = "sms"

// AlertMessage is the SQS body for one SMS alert. The body is rendered
// before enqueueing; the worker only delivers it.
type AlertMessage struct {
	MessageID  string    `json:"message_id"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	Tier       string    `json:"tier"`
	RetryCount int       `json:"retry_count"`
	TraceID    string    `json:"trace_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewAlertMessage creates a message with a fresh ID.
func NewAlertMessage(to, body, tier, traceID string, createdAt time.Time) AlertMessage {
	return AlertMessage{
		MessageID: uuid.NewString(),
		To:        to,
		Body:      body,
		Tier:      tier,
		TraceID:   traceID,
		CreatedAt: createdAt,
	}
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricRetried MetricResult = "retried"
)

// AlertMetrics abstracts delivery telemetry for the worker.
type AlertMetrics interface {
	RecordDelivery(ctx context.Context, result MetricResult)
	RecordLatency(ctx context.Context, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// RetryPolicy defines the exponential backoff parameters for delivery retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// SMSRetryPolicy is used by the alert worker.
var SMSRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     5 * time.Second,
	MaxDelay:      2 * time.Minute,
	BackoffFactor: 4.0,
}

// CalculateNextRetry computes the delay before the next retry attempt:
// min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay || d < 0 {
		d = policy.MaxDelay
	}
	return d
}
