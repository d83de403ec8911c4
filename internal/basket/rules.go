// Package basket implements the subscription customization engine: the rule
// catalog for a plan, the customer's in-progress selection, validation of the
// selection against per-category quantity bounds, exact-decimal pricing, and
// the checkout submission funnel.
//
// Everything in this package is pure and single-owner: a Selection is mutated
// only through its methods, validation and pricing are side-effect free, and
// the same engine runs both for interactive basket edits and for the
// server-side re-check before an order is persisted.
package basket

import (
	"fruitbox/internal/types"
)

// RuleCatalog exposes, for one plan, the fixed items the customer cannot
// change and the per-category quantity bounds for customizable items.
type RuleCatalog struct {
	FixedItems []types.PlanFixedItem

	rules map[types.ProductCategory]types.PlanCustomizableRule
	fixed map[string]bool
}

// LoadRules builds the rule catalog from an already-fetched plan. It has no
// side effects; a category with no configured rule simply has no entry, which
// means the category is not customizable for this plan at all.
func LoadRules(plan *types.Plan) RuleCatalog {
	c := RuleCatalog{
		rules: make(map[types.ProductCategory]types.PlanCustomizableRule),
		fixed: make(map[string]bool),
	}
	if plan == nil {
		return c
	}

	c.FixedItems = plan.FixedItems
	for _, item := range plan.FixedItems {
		c.fixed[item.ProductID] = true
	}
	for _, rule := range plan.Rules {
		c.rules[rule.Category] = rule
	}
	return c
}

// RuleFor returns the configured rule for the category and whether one exists.
func (c RuleCatalog) RuleFor(category types.ProductCategory) (types.PlanCustomizableRule, bool) {
	rule, ok := c.rules[category]
	return rule, ok
}

// CategoryOpen reports whether customers may select products of the category:
// a rule must exist and its maximum must be positive. A rule with max = 0
// disables the category for the plan.
func (c RuleCatalog) CategoryOpen(category types.ProductCategory) bool {
	rule, ok := c.rules[category]
	return ok && rule.MaxQuantity > 0
}

// IsFixedItem reports whether the product ships as a fixed item of the plan.
// The same product can never be both fixed and customizable.
func (c RuleCatalog) IsFixedItem(productID string) bool {
	return c.fixed[productID]
}
