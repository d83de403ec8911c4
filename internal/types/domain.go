package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a single fruit (or fruit bundle) in the catalog.
// Prices are exact decimals; NUMERIC in the database, never binary floats.
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Category    ProductCategory `json:"category" db:"category"`
	Available   bool            `json:"available" db:"available"`
	Stock       int             `json:"stock" db:"stock"`
	ImageKey    string          `json:"image_key,omitempty" db:"image_key"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// PlanFixedItem is a product guaranteed to ship with every delivery of a plan.
// Fixed items are immutable from the customer's perspective and never count
// toward customization validation or the customization subtotal.
type PlanFixedItem struct {
	ProductID string `json:"product_id" db:"product_id"`
	Quantity  int    `json:"quantity" db:"quantity"`
	Position  int    `json:"-" db:"position"`

	// Hydrated from the catalog for display; not stored on the plan row.
	Product *Product `json:"product,omitempty" db:"-"`
}

// PlanCustomizableRule bounds how many products of one category a customer
// may add to a plan basket. Invariant: 0 <= MinQuantity <= MaxQuantity.
// MaxQuantity of zero disables the category for the plan.
type PlanCustomizableRule struct {
	Category    ProductCategory `json:"category" db:"category"`
	MinQuantity int             `json:"min_quantity" db:"min_quantity"`
	MaxQuantity int             `json:"max_quantity" db:"max_quantity"`
}

// Plan is a subscription offering: a base monthly price, an ordered set of
// fixed items, and at most one customizable rule per category.
type Plan struct {
	ID     string          `json:"id" db:"id"`
	Slug   string          `json:"slug" db:"slug"`
	Name   string          `json:"name" db:"name"`
	Price  decimal.Decimal `json:"price" db:"price"`
	Active bool            `json:"active" db:"active"`

	FixedItems []PlanFixedItem        `json:"fixed_items" db:"-"`
	Rules      []PlanCustomizableRule `json:"customizable_rules" db:"-"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// RuleFor returns the customizable rule configured for the category, or
// false when the plan has none (the category is then not customizable).
func (p *Plan) RuleFor(category ProductCategory) (PlanCustomizableRule, bool) {
	for _, r := range p.Rules {
		if r.Category == category {
			return r, true
		}
	}
	return PlanCustomizableRule{}, false
}

// CustomerDetails captures the delivery and contact information collected
// at checkout. For guest checkouts this is the only customer record.
type CustomerDetails struct {
	Name                 string `json:"name" db:"customer_name"`
	Email                string `json:"email" db:"customer_email"`
	Phone                string `json:"phone" db:"customer_phone"`
	Address              string `json:"address" db:"customer_address"`
	DeliveryInstructions string `json:"delivery_instructions,omitempty" db:"delivery_instructions"`
}

// OrderItem is one customizable line of a persisted order or subscription.
// UnitPrice is snapshotted at purchase time so later catalog price changes
// do not rewrite history.
type OrderItem struct {
	ProductID string          `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// Order is a persisted one-time purchase.
type Order struct {
	ID       string          `json:"id" db:"id"`
	PlanID   string          `json:"plan_id" db:"plan_id"`
	UserID   string          `json:"user_id,omitempty" db:"user_id"`
	Customer CustomerDetails `json:"customer" db:"-"`
	Items    []OrderItem     `json:"items" db:"-"`
	Total    decimal.Decimal `json:"total" db:"total"`
	Status   OrderStatus     `json:"status" db:"status"`

	PaymentIntentID string `json:"-" db:"payment_intent_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Subscription is a persisted recurring purchase of a plan, including the
// customization snapshot taken at checkout.
type Subscription struct {
	ID           string             `json:"id" db:"id"`
	PlanID       string             `json:"plan_id" db:"plan_id"`
	UserID       string             `json:"user_id,omitempty" db:"user_id"`
	Customer     CustomerDetails    `json:"customer" db:"-"`
	Items        []OrderItem        `json:"items" db:"-"`
	MonthlyTotal decimal.Decimal    `json:"monthly_total" db:"monthly_total"`
	Status       SubscriptionStatus `json:"status" db:"status"`

	StripeSubscriptionID string `json:"-" db:"stripe_subscription_id"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// User is a registered account (customer or back-office administrator).
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name,omitempty" db:"name"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         UserRole   `json:"role" db:"role"`
	Status       UserStatus `json:"status" db:"status"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	DeletedAt   *time.Time `json:"-" db:"deleted_at"`
}

// Session represents an authenticated browser session, referenced by the
// opaque session cookie.
type Session struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	CSRFToken      string    `json:"-" db:"csrf_token"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	IPAddress      string    `json:"ip_address" db:"ip_address"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// SecurityEvent records a login attempt for abuse tracking and lockout.
type SecurityEvent struct {
	ID            int64     `db:"id"`
	EventType     string    `db:"event_type"`
	Identifier    string    `db:"identifier"`
	IPAddress     string    `db:"ip_address"`
	AttemptedAt   time.Time `db:"attempted_at"`
	Success       bool      `db:"success"`
	FailureReason string    `db:"failure_reason"`
}

// EventEnvelope is the standard wrapper for events published to the
// notification queue. The email worker consumes these.
type EventEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

// OrderCreatedPayload is the payload schema for order.created and
// subscription.created events. This is the contract between the API and the
// email worker; change it only with both sides in mind.
type OrderCreatedPayload struct {
	OrderID       string          `json:"order_id"`
	PlanName      string          `json:"plan_name"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Total         decimal.Decimal `json:"total"`
	Recurring     bool            `json:"recurring"`
	Items         []OrderItem     `json:"items"`
}
