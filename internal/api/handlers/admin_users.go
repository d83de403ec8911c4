package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fruitbox/internal/core"
	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

// AdminUserRepo is the user account access contract for the back office.
type AdminUserRepo interface {
	List(ctx context.Context, f db.UserFilter) ([]*types.User, int, error)
	GetByID(ctx context.Context, id string) (*types.User, error)
	UpdateRole(ctx context.Context, userID string, role types.UserRole) error
	UpdateStatus(ctx context.Context, userID string, status types.UserStatus) error
}

// SessionRevoker kills a user's sessions when their account is deactivated,
// so the lockout takes effect immediately rather than at next session
// resolution.
type SessionRevoker interface {
	InvalidateAllForUser(ctx context.Context, userID string) error
}

// UserRoleRequest is the body for PUT /v1/admin/users/{id}/role.
type UserRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer admin"`
}

// AdminUserHandler manages user accounts: listing, role changes, and
// deactivation.
type AdminUserHandler struct {
	users     AdminUserRepo
	sessions  SessionRevoker
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminUserHandler creates an AdminUserHandler with the provided
// dependencies.
func NewAdminUserHandler(users AdminUserRepo, sessions SessionRevoker, v *core.Validator, logger *slog.Logger) *AdminUserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminUserHandler{
		users:     users,
		sessions:  sessions,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the admin user endpoints.
func (h *AdminUserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}/role", h.HandleUpdateRole)
		r.Post("/{id}/deactivate", h.HandleDeactivate)
		r.Post("/{id}/reactivate", h.HandleReactivate)
	})
}

// HandleList processes GET /v1/admin/users with optional role and status
// filters.
func (h *AdminUserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	page := parsePagination(r, 20, 100)
	filter := db.UserFilter{
		Role:   types.UserRole(r.URL.Query().Get("role")),
		Status: types.UserStatus(r.URL.Query().Get("status")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	users, total, err := h.users.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: users,
		Meta: listMeta(total, page, len(users)),
	})
}

// HandleGet processes GET /v1/admin/users/{id}.
func (h *AdminUserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// HandleUpdateRole processes PUT /v1/admin/users/{id}/role. Admins cannot
// change their own role, which keeps at least one admin able to undo
// mistakes.
func (h *AdminUserHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, types.RoleAdmin)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == actor.ID {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictState,
			"you cannot change your own role", nil))
		return
	}

	var req UserRoleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.users.UpdateRole(r.Context(), userID, types.UserRole(req.Role)); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user role changed",
		"user_id", userID,
		"role", req.Role,
		"changed_by", actor.ID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeactivate processes POST /v1/admin/users/{id}/deactivate. The
// account can no longer log in and all of its sessions are revoked.
func (h *AdminUserHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireRole(w, r, types.RoleAdmin)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == actor.ID {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictState,
			"you cannot deactivate your own account", nil))
		return
	}

	if err := h.users.UpdateStatus(r.Context(), userID, types.UserDeactivated); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.sessions.InvalidateAllForUser(r.Context(), userID); err != nil {
		h.logger.WarnContext(r.Context(), "failed to revoke sessions of deactivated user",
			"user_id", userID,
			"error", err,
		)
	}

	h.logger.InfoContext(r.Context(), "user deactivated", "user_id", userID, "by", actor.ID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleReactivate processes POST /v1/admin/users/{id}/reactivate.
func (h *AdminUserHandler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if err := h.users.UpdateStatus(r.Context(), userID, types.UserActive); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
