package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fruitbox/internal/auth"
	"fruitbox/internal/core"
	"fruitbox/internal/types"
)

// AuthService is the account lifecycle contract backing the auth endpoints.
// Mirrors the concrete auth.Service methods used by this handler.
type AuthService interface {
	Register(ctx context.Context, email, name, password, ip, userAgent string) (*types.User, *types.Session, error)
	Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, error)
	Logout(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// AuthUserReader loads the current user's profile for GET /auth/me.
type AuthUserReader interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest is the body for POST /v1/auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// AuthResponse is returned on successful register and login. The session ID
// travels only in the Set-Cookie header; the CSRF token is returned in the
// body for the client to echo on mutating requests.
type AuthResponse struct {
	User      *types.User `json:"user"`
	CSRFToken string      `json:"csrf_token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// AuthHandler maps HTTP requests to the auth service and manages the
// session cookie.
type AuthHandler struct {
	service       AuthService
	users         AuthUserReader
	validator     *core.Validator
	logger        *slog.Logger
	secureCookies bool
}

// NewAuthHandler creates an AuthHandler with the provided dependencies.
func NewAuthHandler(service AuthService, users AuthUserReader, v *core.Validator, logger *slog.Logger, secureCookies bool) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service:       service,
		users:         users,
		validator:     v,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.HandleRegister)
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
		r.Post("/change-password", h.HandleChangePassword)
	})
}

// HandleRegister processes POST /v1/auth/register: creates the account and
// logs the new customer straight in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, session, err := h.service.Register(r.Context(),
		auth.CanonicalizeEmail(req.Email), req.Name, req.Password,
		extractClientIP(r), r.UserAgent())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.setSessionCookie(w, session)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: AuthResponse{
		User:      user,
		CSRFToken: session.CSRFToken,
		ExpiresAt: session.ExpiresAt,
	}})
}

// HandleLogin processes POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, session, err := h.service.Login(r.Context(),
		auth.CanonicalizeEmail(req.Email), req.Password,
		extractClientIP(r), r.UserAgent())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.setSessionCookie(w, session)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AuthResponse{
		User:      user,
		CSRFToken: session.CSRFToken,
		ExpiresAt: session.ExpiresAt,
	}})
}

// HandleLogout processes POST /v1/auth/logout. The session row is deleted
// and the cookie cleared; logging out without a session still succeeds.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(core.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.WarnContext(r.Context(), "logout failed to delete session", "error", err)
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe processes GET /v1/auth/me, returning the current user's profile.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// HandleChangePassword processes POST /v1/auth/change-password. All other
// sessions are revoked by the service; the current cookie stays valid only
// until its session row is purged, so the client is told to log in again.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		core.Error(w, r, err)
		return
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *types.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     core.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     core.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
