package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fruitbox/internal/core"
	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

// AdminOrderRepo is the order access contract for the back office.
type AdminOrderRepo interface {
	List(ctx context.Context, f db.OrderFilter) ([]*types.Order, int, error)
	GetByID(ctx context.Context, id string) (*types.Order, error)
	UpdateStatus(ctx context.Context, id string, status types.OrderStatus) error
}

// OrderRestocker returns cancelled order lines to stock.
type OrderRestocker interface {
	AdjustStock(ctx context.Context, productID string, delta int) error
}

// allowedOrderTransitions maps each order status to the statuses the back
// office may move it to. Fulfilment and cancellation are terminal.
var allowedOrderTransitions = map[types.OrderStatus][]types.OrderStatus{
	types.OrderPending: {types.OrderPaid, types.OrderCancelled},
	types.OrderPaid:    {types.OrderFulfilled, types.OrderCancelled},
}

// OrderStatusRequest is the body for POST /v1/admin/orders/{id}/status.
type OrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=paid fulfilled cancelled"`
}

// AdminOrderHandler serves order management for the back office: listing,
// inspection, and the fulfilment workflow.
type AdminOrderHandler struct {
	orders    AdminOrderRepo
	stock     OrderRestocker
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminOrderHandler creates an AdminOrderHandler with the provided
// dependencies.
func NewAdminOrderHandler(orders AdminOrderRepo, stock OrderRestocker, v *core.Validator, logger *slog.Logger) *AdminOrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminOrderHandler{
		orders:    orders,
		stock:     stock,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the admin order endpoints.
func (h *AdminOrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/status", h.HandleUpdateStatus)
	})
}

// HandleList processes GET /v1/admin/orders with optional status filtering.
func (h *AdminOrderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	page := parsePagination(r, 20, 100)
	filter := db.OrderFilter{
		Status: types.OrderStatus(r.URL.Query().Get("status")),
		UserID: r.URL.Query().Get("user_id"),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	orders, total, err := h.orders.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: orders,
		Meta: listMeta(total, page, len(orders)),
	})
}

// HandleGet processes GET /v1/admin/orders/{id}.
func (h *AdminOrderHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	order, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: order})
}

// HandleUpdateStatus processes POST /v1/admin/orders/{id}/status, enforcing
// the fulfilment state machine. Cancelling an order returns its lines to
// stock.
func (h *AdminOrderHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	var req OrderStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	order, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	target := types.OrderStatus(req.Status)
	if !transitionAllowed(order.Status, target) {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictState,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, target), nil))
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), order.ID, target); err != nil {
		core.Error(w, r, err)
		return
	}

	if target == types.OrderCancelled {
		h.restock(r.Context(), order)
	}

	h.logger.InfoContext(r.Context(), "order status changed",
		"order_id", order.ID,
		"from", string(order.Status),
		"to", string(target),
	)

	order.Status = target
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: order})
}

// restock returns every line of a cancelled order to inventory. Restocking
// is best-effort: the cancellation already happened, and a failed increment
// only understates stock, never oversells it.
func (h *AdminOrderHandler) restock(ctx context.Context, order *types.Order) {
	for _, item := range order.Items {
		if err := h.stock.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			h.logger.ErrorContext(ctx, "failed to restock cancelled order line",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"quantity", item.Quantity,
				"error", err,
			)
		}
	}
}

func transitionAllowed(from, to types.OrderStatus) bool {
	for _, allowed := range allowedOrderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
