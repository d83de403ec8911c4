package types

// ProductCategory classifies a product for customization rules.
// Every customizable rule and every selection entry is grouped by category.
type ProductCategory string

const (
	CategoryNormal ProductCategory = "normal"
	CategoryExotic ProductCategory = "exotic"
)

// Valid reports whether the category is one of the known values.
func (c ProductCategory) Valid() bool {
	return c == CategoryNormal || c == CategoryExotic
}

// AllCategories lists every known product category in stable order.
// The validation engine iterates this slice so violation messages are
// emitted deterministically.
var AllCategories = []ProductCategory{CategoryNormal, CategoryExotic}

// OrderStatus tracks the lifecycle of a one-time order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFulfilled OrderStatus = "fulfilled"
	OrderCancelled OrderStatus = "cancelled"
)

// SubscriptionStatus tracks the lifecycle of a recurring subscription.
type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "active"
	SubPaused    SubscriptionStatus = "paused"
	SubCancelled SubscriptionStatus = "cancelled"
)

// UserRole defines the access level of a user account.
// The hierarchy is Admin > Customer.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
)

// roleRank maps roles to a comparable level for hierarchy checks.
var roleRank = map[UserRole]int{
	RoleCustomer: 1,
	RoleAdmin:    2,
}

// UserStatus tracks whether a user account may authenticate.
type UserStatus string

const (
	UserActive      UserStatus = "active"
	UserDeactivated UserStatus = "deactivated"
)

// EventType identifies the kind of event published to the notification queue.
type EventType string

const (
	EventOrderCreated        EventType = "order.created"
	EventSubscriptionCreated EventType = "subscription.created"
)
