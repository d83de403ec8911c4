// Package handlers contains the HTTP handler implementations for the
// FruitBox API: storefront catalog and checkout, customer account and
// subscription management, and the admin back office.
//
// Handlers depend on locally defined interfaces mirroring the concrete
// repository and service methods they use, so tests inject lightweight
// stubs instead of database connections.
package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"fruitbox/internal/core"
	"fruitbox/internal/types"
)

// requireActor fetches the authenticated actor from the request context,
// writing a 401 response and returning false when the request is anonymous.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing,
			"Authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}

// requireRole is requireActor plus a role floor; insufficient roles get 403.
func requireRole(w http.ResponseWriter, r *http.Request, role types.UserRole) (types.Actor, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return types.Actor{}, false
	}
	if actor.Type != types.ActorTypeSystem && !actor.RoleHasAtLeast(role) {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionRole,
			"Insufficient role for this operation", nil))
		return types.Actor{}, false
	}
	return actor, true
}

// extractClientIP returns the originating client IP, preferring the
// X-Forwarded-For chain set by the load balancer.
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First entry is the originating client.
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// pageParams holds normalized limit/offset pagination query values.
type pageParams struct {
	Limit  int
	Offset int
}

// parsePagination reads limit/offset query parameters, clamping them to the
// configured bounds. Invalid values fall back to the defaults rather than
// erroring; pagination is never worth failing a list request over.
func parsePagination(r *http.Request, defaultLimit, maxLimit int) pageParams {
	p := pageParams{Limit: defaultLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			p.Limit = v
		}
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			p.Offset = v
		}
	}
	return p
}

// listMeta builds pagination metadata for a list response.
func listMeta(total int, p pageParams, returned int) *types.ResponseMeta {
	return &types.ResponseMeta{
		Pagination: &types.PageInfo{
			HasMore:    p.Offset+returned < total,
			TotalItems: &total,
		},
	}
}
