package basket

import (
	"fmt"

	"fruitbox/internal/types"
)

// SelectionItem is one customizable line in the customer's basket: a product
// and a positive quantity. At most one SelectionItem exists per product.
type SelectionItem struct {
	Product  types.Product
	Quantity int
}

// Selection holds the customer's in-progress choice of customizable items for
// the plan being configured. It is exclusively owned by the session that
// created it; all mutations go through the methods below so the uniqueness
// and positive-quantity invariants hold centrally.
type Selection struct {
	plan    *types.Plan
	catalog RuleCatalog

	items []SelectionItem // insertion order preserved
	index map[string]int  // product ID -> position in items
}

// NewSelection returns an empty selection with no plan attached.
func NewSelection() *Selection {
	return &Selection{index: make(map[string]int)}
}

// AttachPlan binds the selection to a plan and loads its rule catalog.
// Any previously selected items are kept; callers switching plans should
// Clear first.
func (s *Selection) AttachPlan(plan *types.Plan) {
	s.plan = plan
	s.catalog = LoadRules(plan)
}

// Plan returns the attached plan, or nil when none has been chosen yet.
func (s *Selection) Plan() *types.Plan { return s.plan }

// Rules returns the rule catalog of the attached plan.
func (s *Selection) Rules() RuleCatalog { return s.catalog }

// AddItem inserts a new line for the product. It fails with
// basket_duplicate_item when the product is already selected; callers must
// use UpdateQuantity to change an existing line. The product must belong to
// an open category and must not be one of the plan's fixed items.
func (s *Selection) AddItem(product types.Product, quantity int) error {
	if quantity < 1 {
		return types.NewAppError(types.ErrCodeBasketInvalidQuantity,
			fmt.Sprintf("quantity must be at least 1, got %d", quantity), nil)
	}
	if _, exists := s.index[product.ID]; exists {
		return types.NewAppError(types.ErrCodeBasketDuplicateItem,
			fmt.Sprintf("%s is already in the basket; adjust its quantity instead", product.Name), nil)
	}
	if s.catalog.IsFixedItem(product.ID) {
		return types.NewAppError(types.ErrCodeBasketProductUnavailable,
			fmt.Sprintf("%s is already included in every delivery of this plan", product.Name), nil)
	}
	if !s.catalog.CategoryOpen(product.Category) {
		return types.NewAppError(types.ErrCodeBasketProductUnavailable,
			fmt.Sprintf("%s items cannot be added to this plan", product.Category), nil)
	}
	if !product.Available {
		return types.NewAppError(types.ErrCodeBasketProductUnavailable,
			fmt.Sprintf("%s is currently unavailable", product.Name), nil)
	}

	s.index[product.ID] = len(s.items)
	s.items = append(s.items, SelectionItem{Product: product, Quantity: quantity})
	return nil
}

// RemoveItem deletes the line for the product. Removing a product that is not
// selected is a no-op, not an error.
func (s *Selection) RemoveItem(productID string) {
	pos, ok := s.index[productID]
	if !ok {
		return
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, productID)
	// Reindex the tail that shifted left.
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i].Product.ID] = i
	}
}

// UpdateQuantity sets the quantity of an existing line. Quantities below 1
// are rejected with basket_invalid_quantity; use RemoveItem to drop a line.
func (s *Selection) UpdateQuantity(productID string, quantity int) error {
	if quantity < 1 {
		return types.NewAppError(types.ErrCodeBasketInvalidQuantity,
			fmt.Sprintf("quantity must be at least 1, got %d; remove the item instead", quantity), nil)
	}
	pos, ok := s.index[productID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundProduct,
			"product is not in the basket", nil)
	}
	s.items[pos].Quantity = quantity
	return nil
}

// Clear empties the selection and detaches the plan.
func (s *Selection) Clear() {
	s.plan = nil
	s.catalog = RuleCatalog{}
	s.items = nil
	s.index = make(map[string]int)
}

// Items returns all selected lines in insertion order.
func (s *Selection) Items() []SelectionItem {
	return s.items
}

// Empty reports whether nothing has been selected.
func (s *Selection) Empty() bool { return len(s.items) == 0 }

// CategoryCount returns the summed quantity of all lines whose product
// belongs to the category.
func (s *Selection) CategoryCount(category types.ProductCategory) int {
	total := 0
	for _, item := range s.items {
		if item.Product.Category == category {
			total += item.Quantity
		}
	}
	return total
}

// ItemsByCategory returns the lines of one category, insertion order
// preserved.
func (s *Selection) ItemsByCategory(category types.ProductCategory) []SelectionItem {
	var out []SelectionItem
	for _, item := range s.items {
		if item.Product.Category == category {
			out = append(out, item)
		}
	}
	return out
}
