package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/core"
	"fruitbox/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

func customerActor(id string) types.Actor {
	return types.Actor{ID: id, Type: types.ActorTypeUser, Email: id + "@example.com", Role: types.RoleCustomer}
}

func adminActor() types.Actor {
	return types.Actor{ID: "usr_admin", Type: types.ActorTypeUser, Email: "admin@example.com", Role: types.RoleAdmin}
}

type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// serve mounts the handler on a fresh router and performs one request.
// A non-nil actor is injected into the request context the way the session
// middleware would.
func serve(t *testing.T, h routeRegistrar, method, target string, body any, actor *types.Actor) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	h.RegisterRoutes(router)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req = req.WithContext(types.WithActor(req.Context(), *actor))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// errorCode extracts the structured error code from an error response body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

// decodeData unmarshals the data field of a success envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage     `json:"data"`
		Meta *types.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr only", "203.0.113.9:51234", "", "203.0.113.9"},
		{"forwarded single", "10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"forwarded chain takes first", "10.0.0.1:80", "198.51.100.7, 10.0.0.2, 10.0.0.3", "198.51.100.7"},
		{"forwarded with spaces", "10.0.0.1:80", "  198.51.100.7  ", "198.51.100.7"},
		{"unparseable remote addr passes through", "not-an-addr", "", "not-an-addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 24, 0},
		{"explicit values", "limit=10&offset=40", 10, 40},
		{"limit clamped to max", "limit=5000", 100, 0},
		{"invalid limit falls back", "limit=banana", 24, 0},
		{"zero limit falls back", "limit=0", 24, 0},
		{"negative offset falls back", "offset=-5", 24, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			p := parsePagination(req, 24, 100)
			assert.Equal(t, tt.wantLimit, p.Limit)
			assert.Equal(t, tt.wantOffset, p.Offset)
		})
	}
}

func TestListMeta(t *testing.T) {
	meta := listMeta(50, pageParams{Limit: 20, Offset: 0}, 20)
	require.NotNil(t, meta.Pagination)
	assert.True(t, meta.Pagination.HasMore)
	require.NotNil(t, meta.Pagination.TotalItems)
	assert.Equal(t, 50, *meta.Pagination.TotalItems)

	last := listMeta(50, pageParams{Limit: 20, Offset: 40}, 10)
	assert.False(t, last.Pagination.HasMore)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"out of stock", types.NewAppError(types.ErrCodeCheckoutOutOfStock, "", nil), "out_of_stock"},
		{"payment declined", types.NewAppError(types.ErrCodePaymentDeclined, "", nil), "payment_declined"},
		{"basket rule violation", types.NewAppError(types.ErrCodeBasketIncompleteSelection, "", nil), "validation"},
		{"missing product", types.NewAppError(types.ErrCodeNotFoundProduct, "", nil), "validation"},
		{"stripe down", types.NewAppError(types.ErrCodeUpstreamPayment, "", nil), "upstream"},
		{"database error", types.NewAppError(types.ErrCodeInternalDB, "", nil), "internal"},
		{"plain error", io.ErrUnexpectedEOF, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.err))
		})
	}
}
