package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"fruitbox/internal/types"
)

// PlanRepository provides data access for the plans, plan_fixed_items, and
// plan_customizable_rules tables. A plan's fixed items and rules are always
// loaded together with the plan row; the basket engine needs the complete
// rule catalog to validate a selection.
type PlanRepository struct {
	db DBTX
}

// NewPlanRepository creates a new PlanRepository backed by the given database
// connection (pool or transaction).
func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `pl.id, pl.slug, pl.name, pl.price::text, pl.active,
	pl.created_at, pl.updated_at, pl.deleted_at`

func scanPlan(row pgx.Row) (*types.Plan, error) {
	var p types.Plan
	var priceStr string
	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Name,
		&priceStr,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Price, err = scanDecimal(priceStr)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID retrieves a plan with its fixed items and customizable rules.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*types.Plan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+`
		 FROM plans pl
		 WHERE pl.id = $1 AND pl.deleted_at IS NULL`,
		id,
	)
	return r.loadPlan(ctx, row)
}

// GetBySlug retrieves a plan by its URL slug with its fixed items and rules.
func (r *PlanRepository) GetBySlug(ctx context.Context, slug string) (*types.Plan, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+`
		 FROM plans pl
		 WHERE pl.slug = $1 AND pl.deleted_at IS NULL`,
		slug,
	)
	return r.loadPlan(ctx, row)
}

// loadPlan scans the plan row and attaches fixed items and rules.
func (r *PlanRepository) loadPlan(ctx context.Context, row pgx.Row) (*types.Plan, error) {
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve plan", err)
	}

	p.FixedItems, err = r.fixedItemsFor(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Rules, err = r.rulesFor(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns plans ordered by price ascending. Fixed items and rules are
// loaded per plan; catalogs are small (a handful of plans), so the extra
// round trips are acceptable.
func (r *PlanRepository) List(ctx context.Context, activeOnly bool) ([]*types.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans pl WHERE pl.deleted_at IS NULL`
	if activeOnly {
		query += ` AND pl.active = true`
	}
	query += ` ORDER BY pl.price ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plans", err)
	}
	defer rows.Close()

	var plans []*types.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate plans", err)
	}

	for _, p := range plans {
		if p.FixedItems, err = r.fixedItemsFor(ctx, p.ID); err != nil {
			return nil, err
		}
		if p.Rules, err = r.rulesFor(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// Create inserts a plan together with its fixed items and rules. Callers
// should run this inside WithTx so a partial plan never becomes visible.
// Returns ErrCodeConflictSlug if the slug is already taken.
func (r *PlanRepository) Create(ctx context.Context, p *types.Plan) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plans (id, slug, name, price, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, COALESCE($6, NOW()), COALESCE($6, NOW()))`,
		p.ID,
		p.Slug,
		p.Name,
		p.Price.String(),
		p.Active,
		nilIfZeroTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSlug, "a plan with this slug already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create plan", err)
	}

	if err := r.insertFixedItems(ctx, p.ID, p.FixedItems); err != nil {
		return err
	}
	return r.insertRules(ctx, p.ID, p.Rules)
}

// Update rewrites the plan row and replaces its fixed items and rules.
// Callers should run this inside WithTx.
func (r *PlanRepository) Update(ctx context.Context, p *types.Plan) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plans SET slug = $1, name = $2, price = $3::numeric, active = $4, updated_at = NOW()
		 WHERE id = $5 AND deleted_at IS NULL`,
		p.Slug,
		p.Name,
		p.Price.String(),
		p.Active,
		p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSlug, "a plan with this slug already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM plan_fixed_items WHERE plan_id = $1`, p.ID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear fixed items", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM plan_customizable_rules WHERE plan_id = $1`, p.ID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear rules", err)
	}

	if err := r.insertFixedItems(ctx, p.ID, p.FixedItems); err != nil {
		return err
	}
	return r.insertRules(ctx, p.ID, p.Rules)
}

// Delete performs a soft delete on a plan. The caller is responsible for
// first checking that no active subscriptions reference the plan.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plans SET deleted_at = NOW(), active = false
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return nil
}

func (r *PlanRepository) fixedItemsFor(ctx context.Context, planID string) ([]types.PlanFixedItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT product_id, quantity, position
		 FROM plan_fixed_items
		 WHERE plan_id = $1
		 ORDER BY position ASC`,
		planID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load fixed items", err)
	}
	defer rows.Close()

	var items []types.PlanFixedItem
	for rows.Next() {
		var it types.PlanFixedItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Position); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan fixed item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate fixed items", err)
	}
	return items, nil
}

func (r *PlanRepository) rulesFor(ctx context.Context, planID string) ([]types.PlanCustomizableRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT category, min_quantity, max_quantity
		 FROM plan_customizable_rules
		 WHERE plan_id = $1
		 ORDER BY category ASC`,
		planID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load rules", err)
	}
	defer rows.Close()

	var rules []types.PlanCustomizableRule
	for rows.Next() {
		var rule types.PlanCustomizableRule
		if err := rows.Scan(&rule.Category, &rule.MinQuantity, &rule.MaxQuantity); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan rule", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate rules", err)
	}
	return rules, nil
}

func (r *PlanRepository) insertFixedItems(ctx context.Context, planID string, items []types.PlanFixedItem) error {
	for i, it := range items {
		_, err := r.db.Exec(ctx,
			`INSERT INTO plan_fixed_items (plan_id, product_id, quantity, position)
			 VALUES ($1, $2, $3, $4)`,
			planID,
			it.ProductID,
			it.Quantity,
			i,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to insert fixed item", err)
		}
	}
	return nil
}

func (r *PlanRepository) insertRules(ctx context.Context, planID string, rules []types.PlanCustomizableRule) error {
	for _, rule := range rules {
		_, err := r.db.Exec(ctx,
			`INSERT INTO plan_customizable_rules (plan_id, category, min_quantity, max_quantity)
			 VALUES ($1, $2, $3, $4)`,
			planID,
			rule.Category,
			rule.MinQuantity,
			rule.MaxQuantity,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return types.NewAppError(types.ErrCodeValidationInvalidRule, "duplicate rule for category", err)
			}
			return types.NewAppError(types.ErrCodeInternalDB, "failed to insert rule", err)
		}
	}
	return nil
}
