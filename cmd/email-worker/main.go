// Package main is the entry point for the FruitBox email worker Lambda.
//
// The worker consumes order.created and subscription.created events from the
// order events SQS queue, renders confirmation emails, and delivers them via
// SendGrid. It uses partial batch responses so SQS retries only the records
// that failed.
//
// Cold start wiring: logger, environment configuration, SendGrid client, and
// the template renderer. Unknown event types and malformed bodies are acked
// rather than retried, since a redelivery cannot fix them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"golang.org/x/sync/errgroup"

	"fruitbox/internal/email"
	"fruitbox/internal/external"
	"fruitbox/internal/types"
)

// Handler holds the dependencies for the email worker Lambda handler.
type Handler struct {
	renderer *email.Renderer
	sender   external.EmailSender
	enabled  bool
	logger   *slog.Logger
}

// maxConcurrentSends bounds parallel SendGrid calls per invocation.
const maxConcurrentSends = 4

// Handle processes an SQS event containing one or more order events. Records
// are processed concurrently but independently; failures are reported back
// to SQS as batch item failures so only those records are redelivered.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu       sync.Mutex
		response events.SQSEventResponse
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)

	for _, record := range sqsEvent.Records {
		g.Go(func() error {
			if err := h.processRecord(ctx, record); err != nil {
				h.logger.Error("failed to process order event",
					"message_id", record.MessageId,
					"error", err,
				)
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
				)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return response, nil
}

// processRecord renders and sends the confirmation email for a single event.
// A nil return acks the record; an error reports it for redelivery.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var envelope types.EventEnvelope
	if err := json.Unmarshal([]byte(record.Body), &envelope); err != nil {
		// Permanent parse failure; a retry would see the same bytes.
		h.logger.Error("failed to unmarshal event envelope",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	switch envelope.EventType {
	case types.EventOrderCreated, types.EventSubscriptionCreated:
	default:
		h.logger.Debug("ignoring event", "event_type", envelope.EventType, "event_id", envelope.EventID)
		return nil
	}

	var payload types.OrderCreatedPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		h.logger.Error("failed to unmarshal order payload",
			"event_id", envelope.EventID,
			"error", err,
		)
		return nil
	}

	logger := h.logger.With(
		"event_id", envelope.EventID,
		"event_type", string(envelope.EventType),
		"order_id", payload.OrderID,
	)

	if !h.enabled {
		logger.Info("email delivery disabled, skipping")
		return nil
	}

	msg, err := h.renderer.RenderOrderConfirmation(envelope.EventID, payload)
	if err != nil {
		// Rendering is deterministic, so this is permanent too.
		logger.Error("failed to render confirmation email", "error", err)
		return nil
	}

	messageID, err := h.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending confirmation email: %w", err)
	}

	logger.Info("confirmation email sent",
		"recipient", msg.To,
		"recurring", payload.Recurring,
		"provider_message_id", messageID,
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("email worker initializing")

	renderer, err := email.NewRenderer(email.RendererConfig{
		FromAddress:   envOr("EMAIL_FROM_ADDRESS", "orders@fruitbox.io"),
		FromName:      envOr("EMAIL_FROM_NAME", "FruitBox Orders"),
		StorefrontURL: envOr("STOREFRONT_URL", "https://shop.fruitbox.io"),
	})
	if err != nil {
		logger.Error("failed to initialize renderer", "error", err)
		os.Exit(1)
	}

	sender := external.NewSendGridClient(
		&http.Client{Timeout: 10 * time.Second},
		external.SendGridClientConfig{
			APIKey: os.Getenv("SENDGRID_API_KEY"),
			Logger: logger,
		},
	)

	handler := &Handler{
		renderer: renderer,
		sender:   sender,
		enabled:  envOr("EMAIL_ENABLED", "true") == "true",
		logger:   logger,
	}

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime, so the worker can be exercised without AWS.
	if os.Getenv("APP_ENV") == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal feeds a single SQS event from stdin through the handler.
func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading SQS event from stdin")

	payload, err := io.ReadAll(os.Stdin)
	if err != nil || len(payload) == 0 {
		logger.Error("failed to read SQS event from stdin", "error", err)
		os.Exit(1)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("failed to parse stdin as SQS event", "error", err)
		os.Exit(1)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		logger.Error("handler execution failed", "error", err)
		os.Exit(1)
	}

	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
}

// envOr returns the environment variable value, or fallback if unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
