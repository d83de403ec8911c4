package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fruitbox/internal/config"
	"fruitbox/internal/core"
	"fruitbox/internal/external"
	"fruitbox/internal/types"
)

// maxWebhookBody caps the webhook payload read. Stripe events are small;
// anything larger is not a legitimate event.
const maxWebhookBody = 64 << 10

// WebhookSubscriptionRepo is the subscription slice the webhook needs to
// mirror billing state changes originating at Stripe.
type WebhookSubscriptionRepo interface {
	GetByID(ctx context.Context, id string) (*types.Subscription, error)
	UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error
}

// stripeEvent is the envelope Stripe posts to the webhook endpoint.
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// stripeEventObject covers the fields we read from event payloads. For
// customer.subscription.* events Metadata is on the object itself; for
// invoice.* events it lives under subscription_details.
type stripeEventObject struct {
	ID                  string            `json:"id"`
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// StripeWebhookHandler receives billing events from Stripe. Stripe is the
// source of truth for collection state; this endpoint keeps our subscription
// rows in sync when billing changes happen on their side.
type StripeWebhookHandler struct {
	subs     WebhookSubscriptionRepo
	verifier external.WebhookVerifier
	secret   config.SecretString
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler with the provided
// dependencies.
func NewStripeWebhookHandler(subs WebhookSubscriptionRepo, verifier external.WebhookVerifier, billing config.BillingConfig, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		subs:     subs,
		verifier: verifier,
		secret:   billing.StripeWebhookSecret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. It sits under /v1 with the rest
// of the API but carries no session; the signature is its authentication.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.HandleEvent)
}

// HandleEvent processes POST /v1/webhooks/stripe. Events we do not care
// about are acknowledged with 200 so Stripe stops retrying them; a non-2xx
// is reserved for failures where a retry can actually help.
func (h *StripeWebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
			"failed to read webhook payload", err))
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"), h.secret.Unmask()); err != nil {
		h.logger.WarnContext(r.Context(), "rejected webhook with bad signature", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
			"invalid webhook signature", err))
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
			"malformed webhook event", err))
		return
	}

	var object stripeEventObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
			"malformed webhook event object", err))
		return
	}

	logger := h.logger.With("event_id", event.ID, "event_type", event.Type)

	switch event.Type {
	case external.EventStripeSubDeleted:
		err = h.handleSubscriptionDeleted(r.Context(), logger, object)
	case external.EventStripePaymentFailed:
		err = h.handlePaymentFailed(r.Context(), logger, object)
	case external.EventStripeInvoicePaid:
		logger.InfoContext(r.Context(), "invoice paid",
			"subscription_id", object.SubscriptionDetails.Metadata["subscription_id"])
	default:
		logger.DebugContext(r.Context(), "ignoring unhandled webhook event")
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"received": event.ID}})
}

// handleSubscriptionDeleted marks our row cancelled when Stripe ends the
// subscription (card permanently failing, cancellation from the Stripe
// dashboard). Already-cancelled rows are acknowledged without error since
// our own cancel endpoint triggers this same event.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, logger *slog.Logger, object stripeEventObject) error {
	subID := object.Metadata["subscription_id"]
	if subID == "" {
		logger.WarnContext(ctx, "subscription event without subscription_id metadata", "stripe_sub_id", object.ID)
		return nil
	}

	sub, err := h.subs.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Status == types.SubCancelled {
		return nil
	}

	if err := h.subs.UpdateStatus(ctx, sub.ID, types.SubCancelled); err != nil {
		return err
	}
	logger.InfoContext(ctx, "subscription cancelled by billing provider", "subscription_id", sub.ID)
	return nil
}

// handlePaymentFailed pauses the subscription so boxes stop shipping while
// the card is failing. Stripe keeps retrying the invoice; if retries are
// exhausted it sends customer.subscription.deleted and the row is cancelled.
func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, logger *slog.Logger, object stripeEventObject) error {
	subID := object.SubscriptionDetails.Metadata["subscription_id"]
	if subID == "" {
		logger.WarnContext(ctx, "payment failure without subscription_id metadata", "invoice_id", object.ID)
		return nil
	}

	sub, err := h.subs.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Status != types.SubActive {
		return nil
	}

	if err := h.subs.UpdateStatus(ctx, sub.ID, types.SubPaused); err != nil {
		return err
	}
	logger.WarnContext(ctx, "subscription paused after failed payment", "subscription_id", sub.ID)
	return nil
}
