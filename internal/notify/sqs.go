package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"guardian/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends each event as one JSON message to the admin alerts
// queue. Severity and event type are copied into message attributes so
// queue subscribers can filter without parsing the body.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSPublisher creates an SQSPublisher targeting queueURL.
func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, logger: logger}
}

// PublishNotifyAdmin implements types.NotifyAdminPublisher.
func (p *SQSPublisher) PublishNotifyAdmin(ctx context.Context, event types.NotifyAdminEvent) error {
	body, err := encodeEvent(event)
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(EventType)},
			"severity":   {DataType: aws.String("String"), StringValue: aws.String(string(event.Severity))},
		},
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("notifyAdmin event published",
		"warning_id", event.WarningID,
		"severity", event.Severity,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}
