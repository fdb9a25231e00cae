package types

// CloudWatch metric names emitted by the alert worker.
const (
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliveryLatency = "DeliveryLatency"
	MetricQueueLag        = "QueueLag"

	// Dimension Keys
	DimChannel = "Channel"
	DimOutcome = "Outcome"

	// Default namespace; overridable via METRIC_NAMESPACE.
	MetricNamespace = "WayraFrost"
)
