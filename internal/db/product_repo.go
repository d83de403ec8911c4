package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"fruitbox/internal/types"
)

// ProductRepository provides data access for the products table.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository creates a new ProductRepository backed by the given
// database connection (pool or transaction).
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// productColumns defines the standard set of columns selected for product
// queries. Price is selected as text so it can be parsed into an exact
// decimal. Used consistently across all query methods to avoid column drift.
const productColumns = `p.id, p.name, p.description, p.price::text, p.category,
	p.available, p.stock, p.image_key, p.created_at, p.updated_at, p.deleted_at`

// scanProduct scans a single product row into a types.Product struct.
// The columns must match the order defined in productColumns.
func scanProduct(row pgx.Row) (*types.Product, error) {
	var p types.Product
	var (
		description *string
		priceStr    string
		imageKey    *string
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&description,
		&priceStr,
		&p.Category,
		&p.Available,
		&p.Stock,
		&imageKey,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		p.Description = *description
	}
	if imageKey != nil {
		p.ImageKey = *imageKey
	}
	p.Price, err = scanDecimal(priceStr)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new product. Returns ErrCodeConflictSlug if a product with
// the same name already exists (unique index on lower(name)).
func (r *ProductRepository) Create(ctx context.Context, p *types.Product) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO products (id, name, description, price, category, available, stock, image_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, COALESCE($9, NOW()), COALESCE($9, NOW()))`,
		p.ID,
		p.Name,
		nilIfEmpty(p.Description),
		p.Price.String(),
		p.Category,
		p.Available,
		p.Stock,
		nilIfEmpty(p.ImageKey),
		nilIfZeroTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSlug, "a product with this name already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create product", err)
	}
	return nil
}

// GetByID retrieves a product by ID. Soft-deleted products are not returned.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*types.Product, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 WHERE p.id = $1 AND p.deleted_at IS NULL`,
		id,
	)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve product", err)
	}
	return p, nil
}

// GetManyByIDs retrieves multiple products in one round trip, keyed by ID.
// Missing or soft-deleted IDs are simply absent from the result map; the
// caller decides whether that is an error.
func (r *ProductRepository) GetManyByIDs(ctx context.Context, ids []string) (map[string]*types.Product, error) {
	if len(ids) == 0 {
		return map[string]*types.Product{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 WHERE p.id = ANY($1) AND p.deleted_at IS NULL`,
		ids,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve products", err)
	}
	defer rows.Close()

	result := make(map[string]*types.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan product", err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate products", err)
	}
	return result, nil
}

// ProductFilter narrows List results.
type ProductFilter struct {
	Category      types.ProductCategory // empty = all categories
	AvailableOnly bool
	Limit         int
	Offset        int
}

// List returns products matching the filter, ordered by name, plus the total
// count for pagination.
func (r *ProductRepository) List(ctx context.Context, f ProductFilter) ([]*types.Product, int, error) {
	where := []string{"p.deleted_at IS NULL"}
	args := []any{}

	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("p.category = $%d", len(args)))
	}
	if f.AvailableOnly {
		where = append(where, "p.available = true")
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM products p WHERE `+whereClause,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count products", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+`
		 FROM products p
		 WHERE `+whereClause+`
		 ORDER BY p.name ASC
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list products", err)
	}
	defer rows.Close()

	var products []*types.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate products", err)
	}

	return products, total, nil
}

// Update applies changes to the mutable product fields.
func (r *ProductRepository) Update(ctx context.Context, p *types.Product) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET name = $1, description = $2, price = $3::numeric, category = $4,
		     available = $5, stock = $6, image_key = $7, updated_at = NOW()
		 WHERE id = $8 AND deleted_at IS NULL`,
		p.Name,
		nilIfEmpty(p.Description),
		p.Price.String(),
		p.Category,
		p.Available,
		p.Stock,
		nilIfEmpty(p.ImageKey),
		p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSlug, "a product with this name already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update product", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	return nil
}

// AdjustStock atomically decrements stock by the given quantity, refusing to
// go below zero. Returns ErrCodeCheckoutOutOfStock when the remaining stock
// is insufficient, so checkout can fail before payment is attempted.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET stock = stock + $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL AND stock + $1 >= 0`,
		delta,
		productID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to adjust stock", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the product is gone or the decrement would go negative.
		// Distinguish by re-reading.
		if _, getErr := r.GetByID(ctx, productID); getErr != nil {
			return getErr
		}
		return types.NewAppError(types.ErrCodeCheckoutOutOfStock, "insufficient stock for product", nil)
	}
	return nil
}

// SetAvailability toggles whether the product may be added to baskets.
func (r *ProductRepository) SetAvailability(ctx context.Context, productID string, available bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products SET available = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		available,
		productID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update availability", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	return nil
}

// Delete performs a soft delete by setting deleted_at = NOW(). Existing
// orders keep their snapshotted lines; the product simply stops appearing in
// the catalog.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE products SET deleted_at = NOW(), available = false
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete product", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	return nil
}
