package basket

import (
	"github.com/shopspring/decimal"

	"fruitbox/internal/types"
)

// CustomizationSubtotal sums quantity times unit price over every selected
// line using exact decimal arithmetic. Fixed items never appear here; their
// cost is baked into the plan's base price.
func CustomizationSubtotal(sel *Selection) decimal.Decimal {
	subtotal := decimal.Zero
	if sel == nil {
		return subtotal
	}
	for _, item := range sel.Items() {
		line := item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}
	return subtotal
}

// GrandTotal computes the full monthly charge: the plan's base price plus the
// customization subtotal. No intermediate rounding happens anywhere in the
// accumulation; round only at display time via FormatAmount.
func GrandTotal(plan *types.Plan, sel *Selection) decimal.Decimal {
	if plan == nil {
		return CustomizationSubtotal(sel)
	}
	return plan.Price.Add(CustomizationSubtotal(sel))
}

// FormatAmount renders a monetary amount with exactly two decimal places.
// This is the only place rounding is applied.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
