package notifications

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"wayrafrost/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ AlertMetrics = (*CloudWatchAlertMetrics)(nil)

// CloudWatchAlertMetrics emits worker delivery metrics:
//   - DeliveryAttempt: Dims {Channel, Outcome}
//   - DeliveryLatency: Dims {Channel}
//   - QueueLag: no dims
//
// Metric failures are logged and never fail delivery.
type CloudWatchAlertMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchAlertMetrics creates a publisher for namespace
// (types.MetricNamespace when empty).
func NewCloudWatchAlertMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchAlertMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchAlertMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

func (m *CloudWatchAlertMetrics) RecordDelivery(ctx context.Context, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimChannel), Value: aws.String(ChannelSMS)},
			{Name: aws.String(types.DimOutcome), Value: aws.String(string(result))},
		},
	}, "result", string(result))
}

// RecordLatency records milliseconds.
func (m *CloudWatchAlertMetrics) RecordLatency(ctx context.Context, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimChannel), Value: aws.String(ChannelSMS)},
		},
	}, "duration_ms", duration.Milliseconds())
}

// RecordQueueLag records the time between enqueue and processing start.
func (m *CloudWatchAlertMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	}, "lag_ms", lag.Milliseconds())
}

func (m *CloudWatchAlertMetrics) put(ctx context.Context, datum cwtypes.MetricDatum, logArgs ...any) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		args := append([]any{"error", err.Error(), "metric", aws.ToString(datum.MetricName)}, logArgs...)
		m.logger.Error("failed to put metric", args...)
	}
}
