package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/config"
	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

type stubCatalogProducts struct {
	products   []*types.Product
	total      int
	byID       map[string]*types.Product
	listErr    error
	lastFilter db.ProductFilter
}

func (s *stubCatalogProducts) List(ctx context.Context, f db.ProductFilter) ([]*types.Product, int, error) {
	s.lastFilter = f
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	return s.products, s.total, nil
}

func (s *stubCatalogProducts) GetManyByIDs(ctx context.Context, ids []string) (map[string]*types.Product, error) {
	return s.byID, nil
}

type stubCatalogPlans struct {
	plans      []*types.Plan
	bySlug     map[string]*types.Plan
	activeOnly bool
}

func (s *stubCatalogPlans) List(ctx context.Context, activeOnly bool) ([]*types.Plan, error) {
	s.activeOnly = activeOnly
	return s.plans, nil
}

func (s *stubCatalogPlans) GetBySlug(ctx context.Context, slug string) (*types.Plan, error) {
	plan, ok := s.bySlug[slug]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return plan, nil
}

func catalogConfig() config.CatalogConfig {
	return config.CatalogConfig{DefaultPageSize: 24, MaxPageSize: 100, FeedGzipLevel: 6}
}

func storefrontPlan() *types.Plan {
	return &types.Plan{
		ID:     "plan_1",
		Slug:   "family-box",
		Name:   "Family Box",
		Price:  decimal.RequireFromString("49.90"),
		Active: true,
		FixedItems: []types.PlanFixedItem{
			{ProductID: "prod_1", Quantity: 2},
		},
		Rules: []types.PlanCustomizableRule{
			{Category: types.CategoryNormal, MinQuantity: 1, MaxQuantity: 5},
		},
	}
}

func TestCatalogHandler_ListProducts(t *testing.T) {
	products := &stubCatalogProducts{
		products: []*types.Product{
			{ID: "prod_1", Name: "Banana", Category: types.CategoryNormal, Available: true},
		},
		total: 1,
	}
	h := NewCatalogHandler(products, &stubCatalogPlans{}, catalogConfig(), testLogger())

	rec := serve(t, h, http.MethodGet, "/products?category=normal&limit=10", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	// The storefront never sees unavailable products.
	assert.True(t, products.lastFilter.AvailableOnly)
	assert.Equal(t, types.CategoryNormal, products.lastFilter.Category)
	assert.Equal(t, 10, products.lastFilter.Limit)
}

func TestCatalogHandler_ListProducts_UnknownCategory(t *testing.T) {
	h := NewCatalogHandler(&stubCatalogProducts{}, &stubCatalogPlans{}, catalogConfig(), testLogger())

	rec := serve(t, h, http.MethodGet, "/products?category=dried", nil, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidField), errorCode(t, rec))
}

func TestCatalogHandler_ListPlans_HydratesFixedItems(t *testing.T) {
	banana := &types.Product{ID: "prod_1", Name: "Banana", Category: types.CategoryNormal, Available: true}
	products := &stubCatalogProducts{byID: map[string]*types.Product{"prod_1": banana}}
	plans := &stubCatalogPlans{plans: []*types.Plan{storefrontPlan()}}
	h := NewCatalogHandler(products, plans, catalogConfig(), testLogger())

	rec := serve(t, h, http.MethodGet, "/plans", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, plans.activeOnly)

	var got []*types.Plan
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	require.Len(t, got[0].FixedItems, 1)
	require.NotNil(t, got[0].FixedItems[0].Product)
	assert.Equal(t, "Banana", got[0].FixedItems[0].Product.Name)
}

func TestCatalogHandler_GetPlan(t *testing.T) {
	plan := storefrontPlan()
	products := &stubCatalogProducts{byID: map[string]*types.Product{}}
	plans := &stubCatalogPlans{bySlug: map[string]*types.Plan{"family-box": plan}}
	h := NewCatalogHandler(products, plans, catalogConfig(), testLogger())

	rec := serve(t, h, http.MethodGet, "/plans/family-box", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Plan
	decodeData(t, rec, &got)
	assert.Equal(t, "plan_1", got.ID)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, types.CategoryNormal, got.Rules[0].Category)
	// The fixed item's product was deleted from the catalog; the plan still
	// renders with the line unhydrated.
	require.Len(t, got.FixedItems, 1)
	assert.Nil(t, got.FixedItems[0].Product)
}

func TestCatalogHandler_GetPlan_NotFound(t *testing.T) {
	h := NewCatalogHandler(&stubCatalogProducts{}, &stubCatalogPlans{bySlug: map[string]*types.Plan{}}, catalogConfig(), testLogger())

	rec := serve(t, h, http.MethodGet, "/plans/retired-box", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundPlan), errorCode(t, rec))
}
