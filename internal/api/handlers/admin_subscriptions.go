package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fruitbox/internal/core"
	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

// AdminSubscriptionHandler lists subscriptions across all customers for the
// back office. Lifecycle mutations go through the customer endpoints, which
// already let admins act on any subscription.
type AdminSubscriptionHandler struct {
	subs   SubscriptionRepo
	logger *slog.Logger
}

// NewAdminSubscriptionHandler creates an AdminSubscriptionHandler with the
// provided dependencies.
func NewAdminSubscriptionHandler(subs SubscriptionRepo, logger *slog.Logger) *AdminSubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminSubscriptionHandler{subs: subs, logger: logger}
}

// RegisterRoutes mounts the admin subscription endpoints.
func (h *AdminSubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/subscriptions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
	})
}

// HandleList processes GET /v1/admin/subscriptions with optional status,
// plan_id, and user_id filters.
func (h *AdminSubscriptionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	page := parsePagination(r, 20, 100)
	filter := db.SubscriptionFilter{
		UserID: r.URL.Query().Get("user_id"),
		PlanID: r.URL.Query().Get("plan_id"),
		Status: types.SubscriptionStatus(r.URL.Query().Get("status")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	subs, total, err := h.subs.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: subs,
		Meta: listMeta(total, page, len(subs)),
	})
}

// HandleGet processes GET /v1/admin/subscriptions/{id}.
func (h *AdminSubscriptionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	sub, err := h.subs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}
