package core

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"fruitbox/internal/types"
)

// SessionCookieName is the name of the opaque session cookie set at login.
const SessionCookieName = "fruitbox_session"

// AuthMiddleware resolves the session cookie to an Actor.
//
//  1. Reads the session cookie. The storefront is public, so a missing
//     cookie is not an error: the request continues anonymously and
//     RequireAuth/RequireRole gate the endpoints that need an identity.
//  2. Calls Sessions.ResolveSession to resolve the cookie value to an Actor.
//  3. Injects the Actor and the session's CSRF token into the request context.
//  4. Returns 401 with a distinct error code when a cookie is present but
//     cannot be resolved:
//     - auth_session_invalid: session not found or revoked.
//     - auth_session_expired: session exists but has expired.
//
// The resolver performs the live role check (user role and status are read
// from the database on every request) and sliding-window session extension.
//
// If the Sessions field on Server is nil (e.g., during tests that don't
// inject one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Sessions == nil {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			// Anonymous request. Browsing and guest checkout are allowed.
			next.ServeHTTP(w, r)
			return
		}

		actor, csrfToken, err := s.Sessions.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			s.clearSessionCookie(w)
			s.handleSessionError(w, r, err)
			return
		}

		if actor == nil {
			s.clearSessionCookie(w)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionInvalid, "Invalid session")
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		ctx = types.WithSessionCSRFToken(ctx, csrfToken)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CSRFMiddleware enforces CSRF protection for session-authenticated requests.
//
//   - GET, HEAD, and OPTIONS requests are exempt (no state changes).
//   - Anonymous requests are exempt (no session to forge).
//   - System actors are exempt (internal calls, not browser-originated).
//   - For user actors, the X-CSRF-Token header must match the token bound to
//     the session, compared in constant time. Mismatch returns 403.
func (s *Server) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		actor, ok := types.GetActor(r.Context())
		if !ok || actor.Type == types.ActorTypeSystem {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get("X-CSRF-Token")
		sessionToken, hasToken := types.GetSessionCSRFToken(r.Context())

		if !hasToken || headerToken == "" ||
			subtle.ConstantTimeCompare([]byte(headerToken), []byte(sessionToken)) != 1 {
			s.Logger.Warn("CSRF token rejected",
				slog.String("actor_id", actor.ID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			resp := APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeAuthCSRFMismatch),
					Message:   "CSRF token is missing or invalid",
					RequestID: types.GetRequestID(r.Context()),
				},
			}
			JSON(w, r, http.StatusForbidden, resp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAuth returns middleware that rejects anonymous requests with 401.
// Mount it on route groups that need an authenticated customer, e.g. the
// account and subscription management endpoints.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetActor(r.Context()); !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that checks if the Actor in the request
// context has a role equal to or higher than the specified role.
// The role hierarchy is: Admin > Customer.
//
// If the Actor is not present in context (unauthenticated), returns 401.
// If the Actor's role is insufficient, returns 403 Forbidden.
// System actors bypass role checks entirely.
func (s *Server) RequireRole(role types.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := types.GetActor(r.Context())
			if !ok {
				s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Authentication required")
				return
			}

			if actor.Type == types.ActorTypeSystem {
				next.ServeHTTP(w, r)
				return
			}

			if !actor.RoleHasAtLeast(role) {
				resp := APIErrorResponse{
					Error: ErrorDetail{
						Code:      string(types.ErrCodePermissionRole),
						Message:   "Insufficient role for this operation",
						RequestID: types.GetRequestID(r.Context()),
					},
				}
				JSON(w, r, http.StatusForbidden, resp)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// handleSessionError inspects the error from ResolveSession and writes the
// appropriate 401 response with the correct error code.
func (s *Server) handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.Logger.Warn("authentication failed: session expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionExpired, "Session has expired")
			return
		case types.ErrCodeAuthSessionInvalid, types.ErrCodeAuthAccountNotActive:
			s.Logger.Warn("authentication failed: session rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(appErr.Code)),
			)
			s.writeAuthError(w, r, appErr.Code, appErr.Message)
			return
		}
	}

	// Generic error: log it but don't leak internal details.
	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthSessionInvalid, "Authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response with the given error code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	status := http.StatusUnauthorized
	if code == types.ErrCodeAuthAccountNotActive {
		status = http.StatusForbidden
	}
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, status, resp)
}

// clearSessionCookie instructs the browser to drop a session cookie that
// failed to resolve, so subsequent requests arrive cleanly anonymous.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	secure := true
	if s.Config != nil {
		secure = s.Config.Security.SecureCookies
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// isSafeMethod returns true for HTTP methods that should not cause state
// changes and are therefore exempt from CSRF validation.
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
