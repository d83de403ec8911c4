// Package checkout turns a validated basket submission into a paid order or
// an active subscription. It owns the transactional boundary: stock is
// decremented and rows are written in one pgx transaction, so a failed
// payment leaves no partial state behind.
package checkout

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"fruitbox/internal/basket"
	"fruitbox/internal/external"
	"fruitbox/internal/types"
)

// PlanReader loads the plan being purchased.
type PlanReader interface {
	GetByID(ctx context.Context, id string) (*types.Plan, error)
}

// ProductReader resolves the submitted product IDs to catalog rows so unit
// prices and names are snapshotted from the database, never from the client.
type ProductReader interface {
	GetManyByIDs(ctx context.Context, ids []string) (map[string]*types.Product, error)
}

// EventPublisher enqueues confirmation events for the email worker.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, payload types.OrderCreatedPayload) error
	PublishSubscriptionCreated(ctx context.Context, payload types.OrderCreatedPayload) error
}

// Placer implements basket.OrderPlacer. One Submit makes exactly one
// PlaceOrder call; Placer never retries payment on its own.
type Placer struct {
	plans    PlanReader
	products ProductReader
	tx       TxRunner
	payments external.PaymentProvider
	events   EventPublisher
	logger   *slog.Logger
}

// NewPlacer wires the placer to its collaborators.
func NewPlacer(plans PlanReader, products ProductReader, tx TxRunner, payments external.PaymentProvider, events EventPublisher, logger *slog.Logger) *Placer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Placer{
		plans:    plans,
		products: products,
		tx:       tx,
		payments: payments,
		events:   events,
		logger:   logger,
	}
}

// PlaceOrder persists and charges the submission. Recurring submissions
// become subscriptions billed monthly through the payment provider; one-time
// submissions become a single charged order.
func (p *Placer) PlaceOrder(ctx context.Context, req basket.SubmitRequest) (*basket.Confirmation, error) {
	plan, err := p.plans.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	items, err := p.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	customer := types.CustomerDetails{
		Name:                 req.Customer.Name,
		Email:                req.Customer.Email,
		Phone:                req.Customer.Phone,
		Address:              req.Customer.Address,
		DeliveryInstructions: req.Customer.DeliveryInstructions,
	}

	if req.Recurring {
		return p.placeSubscription(ctx, req, plan, customer, items)
	}
	return p.placeOrder(ctx, req, plan, customer, items)
}

func (p *Placer) placeOrder(ctx context.Context, req basket.SubmitRequest, plan *types.Plan, customer types.CustomerDetails, items []types.OrderItem) (*basket.Confirmation, error) {
	order := &types.Order{
		ID:       "ord_" + uuid.NewString(),
		PlanID:   plan.ID,
		Customer: customer,
		Items:    items,
		Total:    req.Total,
		Status:   types.OrderPaid,
	}

	var chargedIntentID string
	err := p.tx.InTx(ctx, func(s TxStores) error {
		// Decrement stock before charging: an out-of-stock line must fail
		// the checkout without touching the customer's card.
		for _, item := range items {
			if err := s.Stock.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return err
			}
		}

		intentID, err := p.payments.ChargeOrder(ctx, order, req.Customer.PaymentMethodID)
		if err != nil {
			return err
		}
		chargedIntentID = intentID
		order.PaymentIntentID = intentID

		return s.Orders.Create(ctx, order)
	})
	if err != nil {
		// The charge went through but the row never landed. Refund so the
		// customer is not left paying for an order that does not exist.
		if chargedIntentID != "" {
			if refundErr := p.payments.RefundOrder(ctx, chargedIntentID); refundErr != nil {
				p.logger.ErrorContext(ctx, "failed to refund charge after rollback",
					"payment_intent_id", chargedIntentID,
					"error", refundErr,
				)
			}
		}
		return nil, err
	}

	p.publish(ctx, types.EventOrderCreated, types.OrderCreatedPayload{
		OrderID:       order.ID,
		PlanName:      plan.Name,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Total:         order.Total,
		Items:         items,
	})

	p.logger.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"plan_id", plan.ID,
		"total", basket.FormatAmount(order.Total),
	)

	return &basket.Confirmation{
		OrderID:   order.ID,
		Total:     order.Total,
		NextSteps: "A confirmation email is on its way.",
	}, nil
}

func (p *Placer) placeSubscription(ctx context.Context, req basket.SubmitRequest, plan *types.Plan, customer types.CustomerDetails, items []types.OrderItem) (*basket.Confirmation, error) {
	sub := &types.Subscription{
		ID:           "sub_" + uuid.NewString(),
		PlanID:       plan.ID,
		Customer:     customer,
		Items:        items,
		MonthlyTotal: req.Total,
		Status:       types.SubActive,
	}

	customerID, err := p.payments.CreateCustomer(ctx, customer.Email, customer.Name)
	if err != nil {
		return nil, err
	}

	stripeSubID, err := p.payments.CreateSubscription(ctx, sub, customerID, req.Customer.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	sub.StripeSubscriptionID = stripeSubID

	err = p.tx.InTx(ctx, func(s TxStores) error {
		// The first delivery ships from current stock.
		for _, item := range items {
			if err := s.Stock.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return err
			}
		}
		return s.Subscriptions.Create(ctx, sub)
	})
	if err != nil {
		// Billing started but the row never landed. Cancel upstream so the
		// customer is not charged for a subscription we cannot fulfil.
		if cancelErr := p.payments.CancelSubscription(ctx, stripeSubID); cancelErr != nil {
			p.logger.ErrorContext(ctx, "failed to cancel provider subscription after rollback",
				"stripe_subscription_id", stripeSubID,
				"error", cancelErr,
			)
		}
		return nil, err
	}

	p.publish(ctx, types.EventSubscriptionCreated, types.OrderCreatedPayload{
		OrderID:       sub.ID,
		PlanName:      plan.Name,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Total:         sub.MonthlyTotal,
		Recurring:     true,
		Items:         items,
	})

	p.logger.InfoContext(ctx, "subscription placed",
		"subscription_id", sub.ID,
		"plan_id", plan.ID,
		"monthly_total", basket.FormatAmount(sub.MonthlyTotal),
	)

	return &basket.Confirmation{
		OrderID:   sub.ID,
		Total:     sub.MonthlyTotal,
		Recurring: true,
		NextSteps: "Your first box ships within 3 business days.",
	}, nil
}

// snapshotItems resolves submitted lines against the catalog. Unknown
// products fail the checkout; the basket was built from the same catalog, so
// a miss means the product was removed mid-checkout.
func (p *Placer) snapshotItems(ctx context.Context, lines []basket.ItemInput) ([]types.OrderItem, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	catalog, err := p.products.GetManyByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]types.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, types.NewAppError(types.ErrCodeNotFoundProduct,
				"a selected product is no longer available", nil)
		}
		items = append(items, types.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
	}
	return items, nil
}

// publish is best-effort: the order exists and is paid, so a queue outage
// must not fail the checkout. The worker catches up from the queue later.
func (p *Placer) publish(ctx context.Context, eventType types.EventType, payload types.OrderCreatedPayload) {
	var err error
	if eventType == types.EventSubscriptionCreated {
		err = p.events.PublishSubscriptionCreated(ctx, payload)
	} else {
		err = p.events.PublishOrderCreated(ctx, payload)
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish confirmation event",
			"event_type", string(eventType),
			"order_id", payload.OrderID,
			"error", err,
		)
	}
}

var _ basket.OrderPlacer = (*Placer)(nil)
