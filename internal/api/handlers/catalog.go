package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"fruitbox/internal/config"
	"fruitbox/internal/core"
	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

// CatalogProductRepo is the product access contract for the public catalog.
type CatalogProductRepo interface {
	List(ctx context.Context, f db.ProductFilter) ([]*types.Product, int, error)
	GetManyByIDs(ctx context.Context, ids []string) (map[string]*types.Product, error)
}

// CatalogPlanRepo is the plan access contract for the public catalog.
type CatalogPlanRepo interface {
	List(ctx context.Context, activeOnly bool) ([]*types.Plan, error)
	GetBySlug(ctx context.Context, slug string) (*types.Plan, error)
}

// CatalogHandler serves the public storefront catalog: available products
// and active plans with their fixed items and customization rules.
type CatalogHandler struct {
	products CatalogProductRepo
	plans    CatalogPlanRepo
	cfg      config.CatalogConfig
	logger   *slog.Logger
}

// NewCatalogHandler creates a CatalogHandler with the provided dependencies.
func NewCatalogHandler(products CatalogProductRepo, plans CatalogPlanRepo, cfg config.CatalogConfig, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{
		products: products,
		plans:    plans,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes mounts the public catalog endpoints.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.HandleListProducts)
	r.Get("/plans", h.HandleListPlans)
	r.Get("/plans/{slug}", h.HandleGetPlan)
}

// HandleListProducts processes GET /v1/products. Only available products are
// listed; the admin endpoints see the full catalog.
func (h *CatalogHandler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	page := parsePagination(r, h.cfg.DefaultPageSize, h.cfg.MaxPageSize)

	filter := db.ProductFilter{
		AvailableOnly: true,
		Limit:         page.Limit,
		Offset:        page.Offset,
	}
	if raw := r.URL.Query().Get("category"); raw != "" {
		category := types.ProductCategory(raw)
		if !category.Valid() {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
				"unknown product category", nil))
			return
		}
		filter.Category = category
	}

	products, total, err := h.products.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: products,
		Meta: listMeta(total, page, len(products)),
	})
}

// HandleListPlans processes GET /v1/plans: active plans with fixed items
// hydrated from the catalog, one concurrent lookup per plan.
func (h *CatalogHandler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), true)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	for _, plan := range plans {
		g.Go(func() error {
			return h.hydrateFixedItems(ctx, plan)
		})
	}
	if err := g.Wait(); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plans})
}

// HandleGetPlan processes GET /v1/plans/{slug}. The plan page is where the
// customer configures a basket, so rules and hydrated fixed items ship in
// one response.
func (h *CatalogHandler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.hydrateFixedItems(r.Context(), plan); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plan})
}

// hydrateFixedItems attaches catalog product records to the plan's fixed
// items for display. A fixed item whose product was since deleted is left
// unhydrated rather than failing the whole plan.
func (h *CatalogHandler) hydrateFixedItems(ctx context.Context, plan *types.Plan) error {
	if len(plan.FixedItems) == 0 {
		return nil
	}

	ids := make([]string, 0, len(plan.FixedItems))
	for _, item := range plan.FixedItems {
		ids = append(ids, item.ProductID)
	}

	products, err := h.products.GetManyByIDs(ctx, ids)
	if err != nil {
		return err
	}

	for i := range plan.FixedItems {
		if product, ok := products[plan.FixedItems[i].ProductID]; ok {
			plan.FixedItems[i].Product = product
		}
	}
	return nil
}
