package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"fruitbox/internal/types"
)

// OrderRepository provides data access for the orders and order_items tables.
// Order lines snapshot the product name and unit price at purchase time, so
// later catalog edits never rewrite order history.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository backed by the given
// database connection (pool or transaction).
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `o.id, o.plan_id, o.user_id, o.customer_name, o.customer_email,
	o.customer_phone, o.customer_address, o.delivery_instructions,
	o.total::text, o.status, o.payment_intent_id, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (*types.Order, error) {
	var o types.Order
	var (
		userID          *string
		instructions    *string
		totalStr        string
		paymentIntentID *string
	)
	err := row.Scan(
		&o.ID,
		&o.PlanID,
		&userID,
		&o.Customer.Name,
		&o.Customer.Email,
		&o.Customer.Phone,
		&o.Customer.Address,
		&instructions,
		&totalStr,
		&o.Status,
		&paymentIntentID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		o.UserID = *userID
	}
	if instructions != nil {
		o.Customer.DeliveryInstructions = *instructions
	}
	if paymentIntentID != nil {
		o.PaymentIntentID = *paymentIntentID
	}
	o.Total, err = scanDecimal(totalStr)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts an order and its snapshotted items. Callers should run this
// inside WithTx together with the stock decrement so a failed payment never
// leaves a partial order behind.
func (r *OrderRepository) Create(ctx context.Context, o *types.Order) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO orders (id, plan_id, user_id, customer_name, customer_email,
		 customer_phone, customer_address, delivery_instructions, total, status,
		 payment_intent_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11,
		         COALESCE($12, NOW()), COALESCE($12, NOW()))`,
		o.ID,
		o.PlanID,
		nilIfEmpty(o.UserID),
		o.Customer.Name,
		o.Customer.Email,
		o.Customer.Phone,
		o.Customer.Address,
		nilIfEmpty(o.Customer.DeliveryInstructions),
		o.Total.String(),
		o.Status,
		nilIfEmpty(o.PaymentIntentID),
		nilIfZeroTime(o.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create order", err)
	}

	for i, item := range o.Items {
		_, err := r.db.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, name, quantity, unit_price, position)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
			o.ID,
			item.ProductID,
			item.Name,
			item.Quantity,
			item.UnitPrice.String(),
			i,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to create order item", err)
		}
	}
	return nil
}

// GetByID retrieves an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*types.Order, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.id = $1`,
		id,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve order", err)
	}

	o.Items, err = r.itemsFor(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// OrderFilter narrows List results.
type OrderFilter struct {
	UserID string            // empty = all users
	Status types.OrderStatus // empty = all statuses
	Limit  int
	Offset int
}

// List returns orders matching the filter, newest first, plus the total count
// for pagination. Items are loaded per order.
func (r *OrderRepository) List(ctx context.Context, f OrderFilter) ([]*types.Order, int, error) {
	where := []string{"1=1"}
	args := []any{}

	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders o WHERE `+whereClause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count orders", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE `+whereClause+`
		 ORDER BY o.created_at DESC
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list orders", err)
	}
	defer rows.Close()

	var orders []*types.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate orders", err)
	}

	for _, o := range orders {
		if o.Items, err = r.itemsFor(ctx, o.ID); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

// UpdateStatus transitions the order to a new status. Transition validity is
// enforced by the caller; the repository only persists the change.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status types.OrderStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}
	return nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderID string) ([]types.OrderItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT product_id, name, quantity, unit_price::text
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY position ASC`,
		orderID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load order items", err)
	}
	defer rows.Close()

	var items []types.OrderItem
	for rows.Next() {
		var it types.OrderItem
		var unitPriceStr string
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &unitPriceStr); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan order item", err)
		}
		if it.UnitPrice, err = scanDecimal(unitPriceStr); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to parse order item price", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate order items", err)
	}
	return items, nil
}
