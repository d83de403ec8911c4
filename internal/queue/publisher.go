// Package queue publishes order and subscription events to SQS for the
// email worker to consume.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"fruitbox/internal/config"
	"fruitbox/internal/types"
)

// eventSource identifies the producer in every envelope.
const eventSource = "fruitbox-api"

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventPublisher sends EventEnvelope messages to the order events queue.
// Publishing is best-effort from the caller's perspective: checkout treats a
// publish failure as non-fatal (the order already exists and is paid), so
// errors are returned for logging rather than to abort the request.
type EventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher targeting the queue from
// AWSConfig.
func NewEventPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		client:   client,
		queueURL: awsCfg.OrderQueueURL,
		logger:   logger,
	}
}

// PublishOrderCreated enqueues an order.created event after a successful
// one-time checkout.
func (p *EventPublisher) PublishOrderCreated(ctx context.Context, payload types.OrderCreatedPayload) error {
	return p.publish(ctx, types.EventOrderCreated, payload)
}

// PublishSubscriptionCreated enqueues a subscription.created event. The
// payload schema is shared with order.created; Recurring distinguishes them
// for the worker's template selection.
func (p *EventPublisher) PublishSubscriptionCreated(ctx context.Context, payload types.OrderCreatedPayload) error {
	payload.Recurring = true
	return p.publish(ctx, types.EventSubscriptionCreated, payload)
}

func (p *EventPublisher) publish(ctx context.Context, eventType types.EventType, payload types.OrderCreatedPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal %s payload: %w", eventType, err)
	}

	envelope := types.EventEnvelope{
		EventID:   "evt_" + uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Payload:   body,
	}

	msgBody, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal %s envelope: %w", eventType, err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(msgBody)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(eventType)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send %s to %s: %w", eventType, p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "event published",
		"queue_url", p.queueURL,
		"event_id", envelope.EventID,
		"event_type", string(eventType),
		"order_id", payload.OrderID,
	)

	return nil
}
