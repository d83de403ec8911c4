package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"fruitbox/internal/types"
)

// SubscriptionRepository provides data access for the subscriptions and
// subscription_items tables. Like orders, subscription lines snapshot the
// product name and unit price taken at checkout.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by
// the given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `s.id, s.plan_id, s.user_id, s.customer_name, s.customer_email,
	s.customer_phone, s.customer_address, s.delivery_instructions,
	s.monthly_total::text, s.status, s.stripe_subscription_id,
	s.created_at, s.updated_at, s.cancelled_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	var (
		userID       *string
		instructions *string
		totalStr     string
		stripeSubID  *string
	)
	err := row.Scan(
		&s.ID,
		&s.PlanID,
		&userID,
		&s.Customer.Name,
		&s.Customer.Email,
		&s.Customer.Phone,
		&s.Customer.Address,
		&instructions,
		&totalStr,
		&s.Status,
		&stripeSubID,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		s.UserID = *userID
	}
	if instructions != nil {
		s.Customer.DeliveryInstructions = *instructions
	}
	if stripeSubID != nil {
		s.StripeSubscriptionID = *stripeSubID
	}
	s.MonthlyTotal, err = scanDecimal(totalStr)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a subscription and its snapshotted customization items.
// Callers should run this inside WithTx.
func (r *SubscriptionRepository) Create(ctx context.Context, s *types.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (id, plan_id, user_id, customer_name, customer_email,
		 customer_phone, customer_address, delivery_instructions, monthly_total, status,
		 stripe_subscription_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11,
		         COALESCE($12, NOW()), COALESCE($12, NOW()))`,
		s.ID,
		s.PlanID,
		nilIfEmpty(s.UserID),
		s.Customer.Name,
		s.Customer.Email,
		s.Customer.Phone,
		s.Customer.Address,
		nilIfEmpty(s.Customer.DeliveryInstructions),
		s.MonthlyTotal.String(),
		s.Status,
		nilIfEmpty(s.StripeSubscriptionID),
		nilIfZeroTime(s.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscription", err)
	}

	for i, item := range s.Items {
		_, err := r.db.Exec(ctx,
			`INSERT INTO subscription_items (subscription_id, product_id, name, quantity, unit_price, position)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
			s.ID,
			item.ProductID,
			item.Name,
			item.Quantity,
			item.UnitPrice.String(),
			i,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscription item", err)
		}
	}
	return nil
}

// GetByID retrieves a subscription with its items.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE s.id = $1`,
		id,
	)

	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}

	s.Items, err = r.itemsFor(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SubscriptionFilter narrows List results.
type SubscriptionFilter struct {
	UserID string
	PlanID string
	Status types.SubscriptionStatus
	Limit  int
	Offset int
}

// List returns subscriptions matching the filter, newest first, plus the
// total count for pagination.
func (r *SubscriptionRepository) List(ctx context.Context, f SubscriptionFilter) ([]*types.Subscription, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("s.user_id = $%d", len(args)))
	}
	if f.PlanID != "" {
		args = append(args, f.PlanID)
		where = append(where, fmt.Sprintf("s.plan_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("s.status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions s WHERE `+whereClause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count subscriptions", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE `+whereClause+`
		 ORDER BY s.created_at DESC
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list subscriptions", err)
	}
	defer rows.Close()

	var subs []*types.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate subscriptions", err)
	}

	for _, s := range subs {
		if s.Items, err = r.itemsFor(ctx, s.ID); err != nil {
			return nil, 0, err
		}
	}
	return subs, total, nil
}

// UpdateStatus transitions the subscription to a new status. Cancellation
// also stamps cancelled_at. Transition validity is enforced by the caller.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error {
	var tagQuery string
	if status == types.SubCancelled {
		tagQuery = `UPDATE subscriptions SET status = $1, cancelled_at = NOW(), updated_at = NOW() WHERE id = $2`
	} else {
		tagQuery = `UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE id = $2`
	}

	tag, err := r.db.Exec(ctx, tagQuery, status, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}

// CountActiveByPlan returns the number of active or paused subscriptions
// referencing a plan. Plan deletion is refused while this is non-zero.
func (r *SubscriptionRepository) CountActiveByPlan(ctx context.Context, planID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions
		 WHERE plan_id = $1 AND status IN ('active', 'paused')`,
		planID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count plan subscriptions", err)
	}
	return count, nil
}

func (r *SubscriptionRepository) itemsFor(ctx context.Context, subID string) ([]types.OrderItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT product_id, name, quantity, unit_price::text
		 FROM subscription_items
		 WHERE subscription_id = $1
		 ORDER BY position ASC`,
		subID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription items", err)
	}
	defer rows.Close()

	var items []types.OrderItem
	for rows.Next() {
		var it types.OrderItem
		var unitPriceStr string
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &unitPriceStr); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription item", err)
		}
		if it.UnitPrice, err = scanDecimal(unitPriceStr); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to parse subscription item price", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate subscription items", err)
	}
	return items, nil
}
