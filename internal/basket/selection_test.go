package basket

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/types"
)

func newAttachedSelection(t *testing.T) *Selection {
	t.Helper()
	sel := NewSelection()
	sel.AttachPlan(testPlan())
	return sel
}

func assertCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestAddItem_InsertsNewLine(t *testing.T) {
	sel := newAttachedSelection(t)

	err := sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 2)
	require.NoError(t, err)

	require.Len(t, sel.Items(), 1)
	assert.Equal(t, 2, sel.Items()[0].Quantity)
	assert.Equal(t, 2, sel.CategoryCount(types.CategoryNormal))
}

func TestAddItem_DuplicateFails(t *testing.T) {
	// A second add of the same product fails and the count reflects only
	// the first call.
	sel := newAttachedSelection(t)
	pear := normalProduct("prod_pear", "Pear", "1.50")

	require.NoError(t, sel.AddItem(pear, 2))
	err := sel.AddItem(pear, 3)

	assertCode(t, err, types.ErrCodeBasketDuplicateItem)
	assert.Equal(t, 2, sel.CategoryCount(types.CategoryNormal))
}

func TestAddItem_RejectsFixedItemProduct(t *testing.T) {
	sel := newAttachedSelection(t)

	err := sel.AddItem(normalProduct("prod_banana", "Banana", "0.80"), 1)

	assertCode(t, err, types.ErrCodeBasketProductUnavailable)
	assert.True(t, sel.Empty())
}

func TestAddItem_RejectsClosedCategory(t *testing.T) {
	plan := testPlan()
	plan.Rules = plan.Rules[:1] // no exotic rule
	sel := NewSelection()
	sel.AttachPlan(plan)

	err := sel.AddItem(exoticProduct("prod_mango", "Mango", "3.20"), 1)
	assertCode(t, err, types.ErrCodeBasketProductUnavailable)
}

func TestAddItem_RejectsDisabledCategory(t *testing.T) {
	plan := testPlan()
	plan.Rules[1].MaxQuantity = 0
	sel := NewSelection()
	sel.AttachPlan(plan)

	err := sel.AddItem(exoticProduct("prod_mango", "Mango", "3.20"), 1)
	assertCode(t, err, types.ErrCodeBasketProductUnavailable)
}

func TestAddItem_RejectsUnavailableProduct(t *testing.T) {
	sel := newAttachedSelection(t)
	pear := normalProduct("prod_pear", "Pear", "1.50")
	pear.Available = false

	err := sel.AddItem(pear, 1)
	assertCode(t, err, types.ErrCodeBasketProductUnavailable)
}

func TestAddItem_RejectsNonPositiveQuantity(t *testing.T) {
	sel := newAttachedSelection(t)

	err := sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 0)
	assertCode(t, err, types.ErrCodeBasketInvalidQuantity)
}

func TestRemoveItem_RestoresPriorCount(t *testing.T) {
	// Round-trip law: adding then removing restores the prior category count.
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 2))
	before := sel.CategoryCount(types.CategoryNormal)

	require.NoError(t, sel.AddItem(normalProduct("prod_plum", "Plum", "2.10"), 3))
	sel.RemoveItem("prod_plum")

	assert.Equal(t, before, sel.CategoryCount(types.CategoryNormal))
}

func TestRemoveItem_AbsentIsNoOp(t *testing.T) {
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 1))

	sel.RemoveItem("prod_never_added")

	assert.Len(t, sel.Items(), 1)
}

func TestRemoveItem_ReindexesRemainingLines(t *testing.T) {
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_a", "A", "1.00"), 1))
	require.NoError(t, sel.AddItem(normalProduct("prod_b", "B", "1.00"), 1))
	require.NoError(t, sel.AddItem(normalProduct("prod_c", "C", "1.00"), 1))

	sel.RemoveItem("prod_a")

	// Mutations through the index must still target the right lines.
	require.NoError(t, sel.UpdateQuantity("prod_c", 4))
	items := sel.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "prod_b", items[0].Product.ID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, "prod_c", items[1].Product.ID)
	assert.Equal(t, 4, items[1].Quantity)
}

func TestUpdateQuantity_SetsQuantity(t *testing.T) {
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 1))

	require.NoError(t, sel.UpdateQuantity("prod_pear", 5))
	assert.Equal(t, 5, sel.CategoryCount(types.CategoryNormal))
}

func TestUpdateQuantity_RejectsZeroAndNegative(t *testing.T) {
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 2))

	for _, q := range []int{0, -1} {
		err := sel.UpdateQuantity("prod_pear", q)
		assertCode(t, err, types.ErrCodeBasketInvalidQuantity)
	}

	// Prior state is kept after rejected input.
	assert.Equal(t, 2, sel.CategoryCount(types.CategoryNormal))
}

func TestUpdateQuantity_UnknownProduct(t *testing.T) {
	sel := newAttachedSelection(t)
	err := sel.UpdateQuantity("prod_ghost", 2)
	assertCode(t, err, types.ErrCodeNotFoundProduct)
}

func TestClear_EmptiesAndDetaches(t *testing.T) {
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 1))

	sel.Clear()

	assert.True(t, sel.Empty())
	assert.Nil(t, sel.Plan())
	assert.Equal(t, 0, sel.CategoryCount(types.CategoryNormal))
}

func TestCategoryCount_SumsQuantitiesPerCategory(t *testing.T) {
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 2))
	require.NoError(t, sel.AddItem(normalProduct("prod_plum", "Plum", "2.10"), 3))
	require.NoError(t, sel.AddItem(exoticProduct("prod_mango", "Mango", "3.20"), 1))

	assert.Equal(t, 5, sel.CategoryCount(types.CategoryNormal))
	assert.Equal(t, 1, sel.CategoryCount(types.CategoryExotic))
}

func TestItemsByCategory_PreservesInsertionOrder(t *testing.T) {
	sel := newAttachedSelection(t)
	require.NoError(t, sel.AddItem(normalProduct("prod_pear", "Pear", "1.50"), 1))
	require.NoError(t, sel.AddItem(exoticProduct("prod_mango", "Mango", "3.20"), 1))
	require.NoError(t, sel.AddItem(normalProduct("prod_plum", "Plum", "2.10"), 1))

	normals := sel.ItemsByCategory(types.CategoryNormal)
	require.Len(t, normals, 2)
	assert.Equal(t, "prod_pear", normals[0].Product.ID)
	assert.Equal(t, "prod_plum", normals[1].Product.ID)
}
