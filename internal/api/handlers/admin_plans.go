package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fruitbox/internal/core"
	"fruitbox/internal/types"
)

// AdminPlanRepo is the plan access contract for the back office.
type AdminPlanRepo interface {
	Create(ctx context.Context, p *types.Plan) error
	GetByID(ctx context.Context, id string) (*types.Plan, error)
	List(ctx context.Context, activeOnly bool) ([]*types.Plan, error)
	Update(ctx context.Context, p *types.Plan) error
	Delete(ctx context.Context, id string) error
}

// PlanProductChecker verifies that fixed-item products exist.
type PlanProductChecker interface {
	GetManyByIDs(ctx context.Context, ids []string) (map[string]*types.Product, error)
}

// PlanSubscriptionCounter guards plan deletion: a plan with active
// subscriptions cannot be removed.
type PlanSubscriptionCounter interface {
	CountActiveByPlan(ctx context.Context, planID string) (int, error)
}

// PlanFixedItemRequest is one fixed item in a plan create/update body.
type PlanFixedItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// PlanRuleRequest is one customization rule in a plan create/update body.
type PlanRuleRequest struct {
	Category    string `json:"category" validate:"required,category"`
	MinQuantity int    `json:"min_quantity" validate:"min=0"`
	MaxQuantity int    `json:"max_quantity" validate:"min=0"`
}

// PlanRequest is the body for plan create and update.
type PlanRequest struct {
	Slug       string                 `json:"slug" validate:"required,slug,max=100"`
	Name       string                 `json:"name" validate:"required,max=200"`
	Price      string                 `json:"price" validate:"required,money"`
	Active     bool                   `json:"active"`
	FixedItems []PlanFixedItemRequest `json:"fixed_items" validate:"dive"`
	Rules      []PlanRuleRequest      `json:"customizable_rules" validate:"dive"`
}

// AdminPlanHandler manages subscription plans and their customization rules.
type AdminPlanHandler struct {
	plans     AdminPlanRepo
	products  PlanProductChecker
	subs      PlanSubscriptionCounter
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminPlanHandler creates an AdminPlanHandler with the provided
// dependencies.
func NewAdminPlanHandler(plans AdminPlanRepo, products PlanProductChecker, subs PlanSubscriptionCounter, v *core.Validator, logger *slog.Logger) *AdminPlanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminPlanHandler{
		plans:     plans,
		products:  products,
		subs:      subs,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the admin plan endpoints.
func (h *AdminPlanHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/plans", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// HandleList processes GET /v1/admin/plans, including inactive plans.
func (h *AdminPlanHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	plans, err := h.plans.List(r.Context(), false)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plans})
}

// HandleCreate processes POST /v1/admin/plans.
func (h *AdminPlanHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	req, ok := h.decodePlan(w, r)
	if !ok {
		return
	}

	plan := h.buildPlan(req)
	plan.ID = "plan_" + uuid.NewString()

	if err := h.plans.Create(r.Context(), plan); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "plan created", "plan_id", plan.ID, "slug", plan.Slug)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: plan})
}

// HandleGet processes GET /v1/admin/plans/{id}.
func (h *AdminPlanHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	plan, err := h.plans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plan})
}

// HandleUpdate processes PUT /v1/admin/plans/{id}: a full replacement of the
// plan row, its fixed items, and its rules.
func (h *AdminPlanHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	existing, err := h.plans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	req, ok := h.decodePlan(w, r)
	if !ok {
		return
	}

	plan := h.buildPlan(req)
	plan.ID = existing.ID
	plan.CreatedAt = existing.CreatedAt

	if err := h.plans.Update(r.Context(), plan); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plan})
}

// HandleDelete processes DELETE /v1/admin/plans/{id}. Plans referenced by
// active subscriptions cannot be deleted; pause or migrate the subscribers
// first.
func (h *AdminPlanHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	planID := chi.URLParam(r, "id")
	active, err := h.subs.CountActiveByPlan(r.Context(), planID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if active > 0 {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeConflictPlanInUse,
			fmt.Sprintf("plan has %d active subscriptions", active), nil,
			map[string]any{"active_subscriptions": active}))
		return
	}

	if err := h.plans.Delete(r.Context(), planID); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodePlan decodes and validates a plan body, enforcing the rule
// invariants the database schema cannot express: at most one rule per
// category, min <= max, and fixed items referencing real products.
func (h *AdminPlanHandler) decodePlan(w http.ResponseWriter, r *http.Request) (PlanRequest, bool) {
	var req PlanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return req, false
	}

	seen := make(map[string]bool, len(req.Rules))
	for _, rule := range req.Rules {
		if seen[rule.Category] {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidRule,
				fmt.Sprintf("category %s has more than one rule", rule.Category), nil))
			return req, false
		}
		seen[rule.Category] = true

		if rule.MinQuantity > rule.MaxQuantity {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidRule,
				fmt.Sprintf("category %s: min quantity %d exceeds max quantity %d",
					rule.Category, rule.MinQuantity, rule.MaxQuantity), nil))
			return req, false
		}
	}

	if len(req.FixedItems) > 0 {
		ids := make([]string, 0, len(req.FixedItems))
		for _, item := range req.FixedItems {
			ids = append(ids, item.ProductID)
		}
		products, err := h.products.GetManyByIDs(r.Context(), ids)
		if err != nil {
			core.Error(w, r, err)
			return req, false
		}
		for _, item := range req.FixedItems {
			if _, ok := products[item.ProductID]; !ok {
				core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundProduct,
					fmt.Sprintf("fixed item product %s does not exist", item.ProductID), nil))
				return req, false
			}
		}
	}

	return req, true
}

func (h *AdminPlanHandler) buildPlan(req PlanRequest) *types.Plan {
	plan := &types.Plan{
		Slug:   req.Slug,
		Name:   req.Name,
		Price:  decimal.RequireFromString(req.Price),
		Active: req.Active,
	}
	for i, item := range req.FixedItems {
		plan.FixedItems = append(plan.FixedItems, types.PlanFixedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Position:  i,
		})
	}
	for _, rule := range req.Rules {
		plan.Rules = append(plan.Rules, types.PlanCustomizableRule{
			Category:    types.ProductCategory(rule.Category),
			MinQuantity: rule.MinQuantity,
			MaxQuantity: rule.MaxQuantity,
		})
	}
	return plan
}
