// Package events publishes usage-recorded events to SQS for downstream
// billing and analytics consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"profilehub/internal/types"
)

// EventTypeUsageRecorded is the event_type attribute on every message.
const EventTypeUsageRecorded = "usage.recorded"

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// UsageMessage is the JSON body of a usage event.
type UsageMessage struct {
	EventID string           `json:"event_id"`
	TraceID string           `json:"trace_id,omitempty"`
	Event   types.UsageEvent `json:"event"`
}

// SQSUsagePublisher implements access.UsageObserver by sending one message
// per recorded charge.
type SQSUsagePublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	newID    func() string
}

// NewSQSUsagePublisher creates a publisher for queueURL.
func NewSQSUsagePublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSUsagePublisher {
	return &SQSUsagePublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}
}

// UsageRecorded serializes the event and sends it. Consumers deduplicate on
// event_id.
func (p *SQSUsagePublisher) UsageRecorded(ctx context.Context, event types.UsageEvent) error {
	msg := UsageMessage{
		EventID: p.newID(),
		TraceID: types.GetRequestID(ctx),
		Event:   event,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("events: failed to marshal usage event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventTypeUsageRecorded),
			},
			"operation": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Operation)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send usage event to %s", p.queueURL), err)
	}

	p.logger.DebugContext(ctx, "usage event sent",
		"event_id", msg.EventID,
		"user_id", event.UserID,
		"operation", string(event.Operation),
		"month", event.Month,
	)
	return nil
}
