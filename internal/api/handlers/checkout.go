package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fruitbox/internal/basket"
	"fruitbox/internal/core"
	"fruitbox/internal/types"
)

// CheckoutPlanRepo loads the plan being purchased.
type CheckoutPlanRepo interface {
	GetByID(ctx context.Context, id string) (*types.Plan, error)
}

// CheckoutProductRepo resolves submitted product IDs against the catalog.
type CheckoutProductRepo interface {
	GetManyByIDs(ctx context.Context, ids []string) (map[string]*types.Product, error)
}

// AccountCreator opportunistically creates an account after a successful
// guest checkout. Mirrors auth.Service.Register.
type AccountCreator interface {
	Register(ctx context.Context, email, name, password, ip, userAgent string) (*types.User, *types.Session, error)
}

// CheckoutMetrics records checkout outcomes for the storefront dashboards.
type CheckoutMetrics interface {
	RecordOrderCreated(ctx context.Context, recurring bool)
	RecordCheckoutFailed(ctx context.Context, reason string)
}

// CheckoutItem is one customizable line in the checkout request.
type CheckoutItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CheckoutCustomer is the customer block of the checkout request.
type CheckoutCustomer struct {
	Name                 string `json:"name" validate:"required,max=200"`
	Email                string `json:"email" validate:"required,email"`
	Phone                string `json:"phone" validate:"required,max=50"`
	Address              string `json:"address" validate:"required,max=500"`
	DeliveryInstructions string `json:"delivery_instructions,omitempty" validate:"max=500"`
	Password             string `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
	PaymentMethodID      string `json:"payment_method_id" validate:"required"`
}

// CheckoutRequest is the body for POST /v1/checkout/order and
// POST /v1/checkout/subscription. Totals are never accepted from the
// client; the engine recomputes them from the catalog.
type CheckoutRequest struct {
	PlanID        string           `json:"plan_id" validate:"required"`
	Items         []CheckoutItem   `json:"items" validate:"dive"`
	Customer      CheckoutCustomer `json:"customer" validate:"required"`
	CreateAccount bool             `json:"create_account"`
}

// CheckoutHandler rebuilds and re-validates the customer's basket
// server-side, then hands it to the submission adapter. Client-side
// validation is a courtesy; this is the enforcement point.
type CheckoutHandler struct {
	plans     CheckoutPlanRepo
	products  CheckoutProductRepo
	submitter *basket.Submitter
	accounts  AccountCreator
	metrics   CheckoutMetrics
	validator *core.Validator
	logger    *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler with the provided dependencies.
func NewCheckoutHandler(
	plans CheckoutPlanRepo,
	products CheckoutProductRepo,
	placer basket.OrderPlacer,
	accounts AccountCreator,
	metrics CheckoutMetrics,
	v *core.Validator,
	logger *slog.Logger,
) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		plans:     plans,
		products:  products,
		submitter: basket.NewSubmitter(placer),
		accounts:  accounts,
		metrics:   metrics,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the checkout endpoints.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/order", h.HandleCheckoutOrder)
		r.Post("/subscription", h.HandleCheckoutSubscription)
	})
}

// HandleCheckoutOrder processes a one-time purchase.
func (h *CheckoutHandler) HandleCheckoutOrder(w http.ResponseWriter, r *http.Request) {
	h.handleCheckout(w, r, false)
}

// HandleCheckoutSubscription processes a recurring subscription sign-up.
func (h *CheckoutHandler) HandleCheckoutSubscription(w http.ResponseWriter, r *http.Request) {
	h.handleCheckout(w, r, true)
}

func (h *CheckoutHandler) handleCheckout(w http.ResponseWriter, r *http.Request, recurring bool) {
	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sel, err := h.rebuildSelection(r.Context(), req)
	if err != nil {
		h.metrics.RecordCheckoutFailed(r.Context(), failureReason(err))
		core.Error(w, r, err)
		return
	}

	customer := basket.CustomerInput{
		Name:                 req.Customer.Name,
		Email:                req.Customer.Email,
		Phone:                req.Customer.Phone,
		Address:              req.Customer.Address,
		DeliveryInstructions: req.Customer.DeliveryInstructions,
		Password:             req.Customer.Password,
		PaymentMethodID:      req.Customer.PaymentMethodID,
	}

	conf, err := h.submitter.Submit(r.Context(), sel, customer, req.CreateAccount, recurring)
	if err != nil {
		h.metrics.RecordCheckoutFailed(r.Context(), failureReason(err))
		core.Error(w, r, err)
		return
	}

	h.metrics.RecordOrderCreated(r.Context(), recurring)
	h.maybeCreateAccount(r, req)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: conf})
}

// rebuildSelection reconstructs the basket from the request against
// database-loaded plan and products, enforcing every engine rule the
// storefront already applied client-side.
func (h *CheckoutHandler) rebuildSelection(ctx context.Context, req CheckoutRequest) (*basket.Selection, error) {
	plan, err := h.plans.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := h.products.GetManyByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	sel := basket.NewSelection()
	sel.AttachPlan(plan)
	for _, item := range req.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, types.NewAppError(types.ErrCodeNotFoundProduct,
				"a selected product does not exist", nil)
		}
		if err := sel.AddItem(*product, item.Quantity); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

// maybeCreateAccount registers an account after a successful guest checkout
// when the customer asked for one. The order already succeeded, so a
// registration failure (say, the email is taken) is logged, not surfaced.
func (h *CheckoutHandler) maybeCreateAccount(r *http.Request, req CheckoutRequest) {
	if !req.CreateAccount || req.Customer.Password == "" {
		return
	}
	if _, ok := types.GetActor(r.Context()); ok {
		return
	}

	_, _, err := h.accounts.Register(r.Context(),
		req.Customer.Email, req.Customer.Name, req.Customer.Password,
		extractClientIP(r), r.UserAgent())
	if err != nil {
		h.logger.WarnContext(r.Context(), "post-checkout account creation failed",
			"email", req.Customer.Email,
			"error", err,
		)
	}
}

// failureReason buckets a checkout error into the coarse dimension used by
// the CheckoutFailed metric.
func failureReason(err error) string {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return "internal"
	}
	switch {
	case appErr.Code == types.ErrCodeCheckoutOutOfStock:
		return "out_of_stock"
	case appErr.Code == types.ErrCodePaymentDeclined:
		return "payment_declined"
	case strings.HasPrefix(string(appErr.Code), "basket_"),
		strings.HasPrefix(string(appErr.Code), "validation_"),
		strings.HasPrefix(string(appErr.Code), "not_found_"):
		return "validation"
	case strings.HasPrefix(string(appErr.Code), "upstream_"):
		return "upstream"
	default:
		return "internal"
	}
}
