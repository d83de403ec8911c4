package checkout

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

// OrderWriter persists an order row with its item lines.
type OrderWriter interface {
	Create(ctx context.Context, o *types.Order) error
}

// SubscriptionWriter persists a subscription row with its item snapshot.
type SubscriptionWriter interface {
	Create(ctx context.Context, s *types.Subscription) error
}

// StockAdjuster applies a stock delta, failing with checkout_out_of_stock
// when the decrement would go negative.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, productID string, delta int) error
}

// TxStores bundles the repositories bound to one open transaction.
type TxStores struct {
	Orders        OrderWriter
	Subscriptions SubscriptionWriter
	Stock         StockAdjuster
}

// TxRunner runs fn inside a transaction; any error rolls everything back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(TxStores) error) error
}

// PoolTxRunner is the production TxRunner backed by a pgx pool.
type PoolTxRunner struct {
	pool *pgxpool.Pool
}

// NewPoolTxRunner creates a TxRunner over the given pool.
func NewPoolTxRunner(pool *pgxpool.Pool) *PoolTxRunner {
	return &PoolTxRunner{pool: pool}
}

// InTx opens a transaction and hands fn repositories bound to it.
func (r *PoolTxRunner) InTx(ctx context.Context, fn func(TxStores) error) error {
	return db.WithTx(ctx, r.pool, func(tx db.DBTX) error {
		return fn(TxStores{
			Orders:        db.NewOrderRepository(tx),
			Subscriptions: db.NewSubscriptionRepository(tx),
			Stock:         db.NewProductRepository(tx),
		})
	})
}
