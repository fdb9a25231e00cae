// Package main is the entrypoint for the Alert Worker.
//
// The worker consumes AlertMessages from the alert SQS queue and delivers the
// pre-rendered SMS body through Twilio. Bodies are rendered by the API before
// enqueueing, so the worker never re-runs the compactor.
//
// Handler flow, per SQS record:
//  1. Unmarshal the AlertMessage. Malformed bodies are acknowledged and dropped.
//  2. Record queue lag from the SentTimestamp attribute.
//  3. Send via the SMS sender.
//  4. On a transient failure, publish a copy with RetryCount+1 and a backoff
//     delay, then acknowledge the original. Once the retry budget is spent,
//     or for permanent failures (invalid recipient), the alert is dropped.
//  5. A failed retry publish is reported as a batch item failure so SQS
//     redelivers the original.
//
// Outside Lambda the worker reads one JSON AlertMessage per line from stdin,
// which is convenient for exercising delivery locally.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"wayrafrost/internal/config"
	"wayrafrost/internal/external"
	"wayrafrost/internal/notifications"
	"wayrafrost/internal/types"
)

// RetryPublisher re-enqueues an alert with a delay.
type RetryPublisher interface {
	Publish(ctx context.Context, msg notifications.AlertMessage, delay time.Duration) error
}

// Handler holds the dependencies for the alert worker.
type Handler struct {
	sender      types.SMSSender
	publisher   RetryPublisher
	metrics     notifications.AlertMetrics
	retryPolicy notifications.RetryPolicy
	clock       clockwork.Clock
	logger      types.Logger
}

// Handle processes an SQS event. Messages that need redelivery are returned
// in BatchItemFailures; everything else is acknowledged.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	start := h.clock.Now()

	var msg notifications.AlertMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal alert message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}
	if msg.To == "" || msg.Body == "" {
		h.logger.Error("alert message without recipient or body", "message_id", msg.MessageID)
		h.metrics.RecordDelivery(ctx, notifications.MetricFailed)
		return nil
	}

	if msg.TraceID != "" {
		ctx = types.WithTraceID(ctx, msg.TraceID)
	}
	logger := h.logger.With(
		"alert_id", msg.MessageID,
		"tier", msg.Tier,
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if ms, err := strconv.ParseInt(sent, 10, 64); err == nil {
			h.metrics.RecordQueueLag(ctx, h.clock.Since(time.UnixMilli(ms)))
		}
	}

	sid, err := h.sender.Send(ctx, msg.To, msg.Body)
	h.metrics.RecordLatency(ctx, h.clock.Since(start))
	if err == nil {
		h.metrics.RecordDelivery(ctx, notifications.MetricSuccess)
		logger.Info("alert delivered", "message_sid", sid)
		return nil
	}

	if !retryable(err) {
		h.metrics.RecordDelivery(ctx, notifications.MetricFailed)
		logger.Error("alert delivery permanently failed", "error", err.Error())
		return nil
	}
	return h.retry(ctx, msg, err, logger)
}

// retry implements the publish-and-acknowledge retry: a new message with a
// backoff delay replaces the original.
func (h *Handler) retry(ctx context.Context, msg notifications.AlertMessage, cause error, logger types.Logger) error {
	if msg.RetryCount >= h.retryPolicy.MaxAttempts {
		h.metrics.RecordDelivery(ctx, notifications.MetricFailed)
		logger.Error("alert delivery failed after retries", "error", cause.Error())
		return nil
	}
	if h.publisher == nil {
		return fmt.Errorf("no retry publisher configured: %w", cause)
	}

	delay := notifications.CalculateNextRetry(h.retryPolicy, msg.RetryCount)
	next := msg
	next.RetryCount++
	if err := h.publisher.Publish(ctx, next, delay); err != nil {
		return fmt.Errorf("publish retry message: %w", err)
	}

	h.metrics.RecordDelivery(ctx, notifications.MetricRetried)
	logger.Warn("alert delivery retry scheduled",
		"retry_count", next.RetryCount,
		"delay_seconds", int(delay.Seconds()),
		"error", cause.Error(),
	)
	return nil
}

// retryable reports whether a send error may succeed later. Validation
// failures (such as an invalid recipient) and unconfigured or unauthorized
// transports are permanent.
func retryable(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return true
	}
	code := string(appErr.Code)
	return strings.HasPrefix(code, "upstream_") || appErr.Code == types.ErrCodeInternalUnexpected
}

// logMetrics reports delivery metrics to the log; used outside Lambda.
type logMetrics struct {
	logger types.Logger
}

func (m logMetrics) RecordDelivery(_ context.Context, result notifications.MetricResult) {
	m.logger.Info("metric", "name", types.MetricDeliveryAttempt, "outcome", string(result))
}

func (m logMetrics) RecordLatency(_ context.Context, d time.Duration) {
	m.logger.Info("metric", "name", types.MetricDeliveryLatency, "ms", d.Milliseconds())
}

func (m logMetrics) RecordQueueLag(_ context.Context, d time.Duration) {
	m.logger.Info("metric", "name", types.MetricQueueLag, "ms", d.Milliseconds())
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return hasRuntimeAPI
}

// readLocalEvent wraps each non-blank stdin line in an SQS record.
func readLocalEvent(r io.Reader, now time.Time) (events.SQSEvent, error) {
	var ev events.SQSEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev.Records = append(ev.Records, events.SQSMessage{
			MessageId: uuid.NewString(),
			Body:      line,
			Attributes: map[string]string{
				"SentTimestamp": strconv.FormatInt(now.UnixMilli(), 10),
			},
		})
	}
	return ev, scanner.Err()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(logger); err != nil {
		logger.Error("alert worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()
	typedLogger := types.NewSlogAdapter(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var sender types.SMSSender = external.NewStubSMSSender(logger)
	if cfg.SMS.SMSAvailable() {
		sender = external.NewTwilioSender(nil, external.TwilioConfig{
			AccountSID: cfg.SMS.TwilioAccountSID,
			AuthToken:  cfg.SMS.TwilioAuthToken,
			From:       cfg.SMS.TwilioFromNumber,
			BaseURL:    cfg.SMS.TwilioURL,
			Logger:     logger.With("client", "twilio"),
		})
	} else {
		logger.Warn("Twilio credentials not set, alerts are logged instead of sent")
	}

	handler := &Handler{
		sender:      sender,
		metrics:     logMetrics{logger: typedLogger},
		retryPolicy: notifications.SMSRetryPolicy,
		clock:       clockwork.NewRealClock(),
		logger:      typedLogger,
	}

	lambdaMode := isLambdaEnvironment()
	if lambdaMode || cfg.AWS.AlertQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS SDK config: %w", err)
		}
		endpoint := func(base **string) {
			if cfg.AWS.EndpointURL != "" {
				*base = aws.String(cfg.AWS.EndpointURL)
			}
		}
		if cfg.AWS.AlertQueueURL != "" {
			sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { endpoint(&o.BaseEndpoint) })
			handler.publisher = notifications.NewAlertPublisher(sqsClient, cfg.AWS.AlertQueueURL, typedLogger)
		}
		if lambdaMode && cfg.Observability.EnableMetrics {
			cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) { endpoint(&o.BaseEndpoint) })
			handler.metrics = notifications.NewCloudWatchAlertMetrics(cwClient, cfg.Observability.MetricNamespace, typedLogger)
		}
	}

	logger.Info("alert worker initialized",
		"lambda", lambdaMode,
		"queue_url", cfg.AWS.AlertQueueURL,
		"sms_available", cfg.SMS.SMSAvailable(),
		"max_attempts", handler.retryPolicy.MaxAttempts,
	)

	if lambdaMode {
		lambda.Start(handler.Handle)
		return nil
	}

	ev, err := readLocalEvent(os.Stdin, handler.clock.Now())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	resp, err := handler.Handle(ctx, ev)
	if err != nil {
		return err
	}
	logger.Info("local batch processed",
		"messages", len(ev.Records),
		"failures", len(resp.BatchItemFailures),
	)
	return nil
}
