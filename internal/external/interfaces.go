package external

import (
	"context"

	"fruitbox/internal/types"
)

// PaymentProvider abstracts the payment vendor (Stripe). Checkout uses it
// for one-time order charges and recurring subscription billing.
type PaymentProvider interface {
	// ChargeOrder creates and confirms a one-time payment for the order
	// total. Returns the provider's payment intent ID. A declined card
	// surfaces as ErrCodePaymentDeclined.
	ChargeOrder(ctx context.Context, order *types.Order, paymentMethodID string) (string, error)

	// RefundOrder refunds a confirmed payment intent in full. Checkout uses
	// it to compensate when the order row cannot be written after a
	// successful charge.
	RefundOrder(ctx context.Context, paymentIntentID string) error

	// CreateCustomer registers the customer with the payment provider and
	// returns the provider customer ID. Required before CreateSubscription.
	CreateCustomer(ctx context.Context, email, name string) (string, error)

	// CreateSubscription starts recurring monthly billing for the
	// subscription's monthly total. Returns the provider subscription ID.
	CreateSubscription(ctx context.Context, sub *types.Subscription, customerID, paymentMethodID string) (string, error)

	// PauseSubscription suspends collection without cancelling.
	PauseSubscription(ctx context.Context, providerSubID string) error

	// ResumeSubscription restarts collection on a paused subscription.
	ResumeSubscription(ctx context.Context, providerSubID string) error

	// CancelSubscription ends the subscription immediately.
	CancelSubscription(ctx context.Context, providerSubID string) error
}

// EmailSender abstracts the transactional email vendor (SendGrid).
type EmailSender interface {
	// Send transmits a pre-rendered email and returns the provider's
	// message ID.
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// EmailMessage is a fully rendered email ready for transmission.
type EmailMessage struct {
	To          string
	ToName      string
	From        string
	FromName    string
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string // internal event ID for delivery correlation
}

// WebhookVerifier abstracts payment webhook signature checking.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// Stripe webhook event types handled by the billing webhook endpoint.
const (
	EventStripeInvoicePaid   = "invoice.paid"
	EventStripePaymentFailed = "invoice.payment_failed"
	EventStripeSubDeleted    = "customer.subscription.deleted"
)
