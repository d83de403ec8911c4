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

// SubscriptionRepo is the subscription access contract for the customer
// endpoints. Mirrors the concrete db.SubscriptionRepository methods used.
type SubscriptionRepo interface {
	List(ctx context.Context, f db.SubscriptionFilter) ([]*types.Subscription, int, error)
	GetByID(ctx context.Context, id string) (*types.Subscription, error)
	UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error
}

// SubscriptionBilling is the payment-provider slice the lifecycle endpoints
// need: collection must pause, resume, and stop in lockstep with our rows.
type SubscriptionBilling interface {
	PauseSubscription(ctx context.Context, providerSubID string) error
	ResumeSubscription(ctx context.Context, providerSubID string) error
	CancelSubscription(ctx context.Context, providerSubID string) error
}

// SubscriptionHandler serves the customer-facing subscription management
// endpoints. Customers only see and mutate their own rows; the admin
// handler covers everything else.
type SubscriptionHandler struct {
	subs    SubscriptionRepo
	billing SubscriptionBilling
	logger  *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler with the provided
// dependencies.
func NewSubscriptionHandler(subs SubscriptionRepo, billing SubscriptionBilling, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{
		subs:    subs,
		billing: billing,
		logger:  logger,
	}
}

// RegisterRoutes mounts the customer subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.HandleListOwn)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/pause", h.HandlePause)
		r.Post("/{id}/resume", h.HandleResume)
		r.Post("/{id}/cancel", h.HandleCancel)
	})
}

// HandleListOwn processes GET /v1/subscriptions, listing the caller's
// subscriptions newest first.
func (h *SubscriptionHandler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	page := parsePagination(r, 20, 100)
	subs, total, err := h.subs.List(r.Context(), db.SubscriptionFilter{
		UserID: actor.ID,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: subs,
		Meta: listMeta(total, page, len(subs)),
	})
}

// HandleGet processes GET /v1/subscriptions/{id}.
func (h *SubscriptionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

// HandlePause processes POST /v1/subscriptions/{id}/pause. Collection stops
// upstream first; the row only flips to paused once billing is actually
// paused.
func (h *SubscriptionHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if sub.Status != types.SubActive {
		core.Error(w, r, transitionError(sub.Status, types.SubPaused))
		return
	}

	if err := h.billing.PauseSubscription(r.Context(), sub.StripeSubscriptionID); err != nil {
		core.Error(w, r, err)
		return
	}
	h.updateStatus(w, r, sub, types.SubPaused)
}

// HandleResume processes POST /v1/subscriptions/{id}/resume.
func (h *SubscriptionHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if sub.Status != types.SubPaused {
		core.Error(w, r, transitionError(sub.Status, types.SubActive))
		return
	}

	if err := h.billing.ResumeSubscription(r.Context(), sub.StripeSubscriptionID); err != nil {
		core.Error(w, r, err)
		return
	}
	h.updateStatus(w, r, sub, types.SubActive)
}

// HandleCancel processes POST /v1/subscriptions/{id}/cancel. Cancellation is
// terminal; cancelled subscriptions cannot be resumed.
func (h *SubscriptionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if sub.Status == types.SubCancelled {
		core.Error(w, r, transitionError(sub.Status, types.SubCancelled))
		return
	}

	if err := h.billing.CancelSubscription(r.Context(), sub.StripeSubscriptionID); err != nil {
		core.Error(w, r, err)
		return
	}
	h.updateStatus(w, r, sub, types.SubCancelled)
}

// loadOwned fetches the subscription and enforces ownership. Admins pass
// the ownership check so support can act on a customer's behalf.
func (h *SubscriptionHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*types.Subscription, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return nil, false
	}

	sub, err := h.subs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}

	if sub.UserID != actor.ID && !actor.RoleHasAtLeast(types.RoleAdmin) {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionOwner,
			"subscription belongs to another customer", nil))
		return nil, false
	}
	return sub, true
}

func (h *SubscriptionHandler) updateStatus(w http.ResponseWriter, r *http.Request, sub *types.Subscription, status types.SubscriptionStatus) {
	if err := h.subs.UpdateStatus(r.Context(), sub.ID, status); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "subscription status changed",
		"subscription_id", sub.ID,
		"from", string(sub.Status),
		"to", string(status),
	)

	sub.Status = status
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

func transitionError(from, to types.SubscriptionStatus) error {
	return types.NewAppError(types.ErrCodeConflictState,
		fmt.Sprintf("cannot move subscription from %s to %s", from, to), nil)
}
