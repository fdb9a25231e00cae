package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"wayrafrost/internal/types"
)

// maxDelaySeconds is the SQS DelaySeconds limit.
const maxDelaySeconds = 900

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlertPublisher sends AlertMessages to the alert queue, both for the first
// dispatch from the API and for worker retries.
type AlertPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewAlertPublisher creates a publisher targeting queueURL.
func NewAlertPublisher(client SQSSender, queueURL string, logger types.Logger) *AlertPublisher {
	return &AlertPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish serializes msg and sends it with the given delay, clamped to
// [0, 900] seconds. msg is passed by value; retry bookkeeping is the
// caller's.
func (p *AlertPublisher) Publish(ctx context.Context, msg AlertMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("alert publisher: failed to marshal message: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > maxDelaySeconds {
		delaySec = maxDelaySeconds
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}
	if msg.Tier != "" {
		input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{
			"tier": {DataType: aws.String("String"), StringValue: aws.String(msg.Tier)},
		}
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("alert publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("alert message published",
		"message_id", msg.MessageID,
		"retry_count", msg.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", msg.TraceID,
	)
	return nil
}
