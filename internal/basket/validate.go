package basket

import (
	"fmt"

	"fruitbox/internal/types"
)

// Report is the outcome of validating a selection against its plan's rules.
// It is plain data: an invalid selection is an expected state (the basket is
// invalid the moment a plan page loads when any rule has min > 0), never an
// error value.
type Report struct {
	violations []string
}

// IsValid reports whether every configured category bound is satisfied.
func (r Report) IsValid() bool { return len(r.violations) == 0 }

// Errors returns the human-readable violations, empty when valid.
func (r Report) Errors() []string { return r.violations }

// Validate checks the selection against every configured rule of its attached
// plan. Categories with no rule, or with max = 0, are skipped entirely: they
// are neither validated nor purchasable. The function is pure and idempotent;
// callers re-run it after every mutation and once more before checkout.
func Validate(sel *Selection) Report {
	var report Report
	if sel == nil || sel.Plan() == nil {
		return report
	}

	catalog := sel.Rules()
	for _, category := range types.AllCategories {
		rule, ok := catalog.RuleFor(category)
		if !ok || rule.MaxQuantity == 0 {
			continue
		}

		count := sel.CategoryCount(category)
		if count < rule.MinQuantity {
			report.violations = append(report.violations,
				fmt.Sprintf("%s requires at least %d items (currently %d)", category, rule.MinQuantity, count))
		}
		if count > rule.MaxQuantity {
			report.violations = append(report.violations,
				fmt.Sprintf("%s allows at most %d items (currently %d)", category, rule.MaxQuantity, count))
		}
	}
	return report
}
