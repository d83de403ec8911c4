package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

type stubAdminProducts struct {
	byID     map[string]*types.Product
	all      []*types.Product
	created  *types.Product
	updated  *types.Product
	deleted  []string
	deltas   map[string]int
	stockErr error
}

func (s *stubAdminProducts) Create(ctx context.Context, p *types.Product) error {
	s.created = p
	if s.byID == nil {
		s.byID = make(map[string]*types.Product)
	}
	s.byID[p.ID] = p
	return nil
}

func (s *stubAdminProducts) GetByID(ctx context.Context, id string) (*types.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProduct, "product not found", nil)
	}
	return p, nil
}

func (s *stubAdminProducts) List(ctx context.Context, f db.ProductFilter) ([]*types.Product, int, error) {
	return s.all, len(s.all), nil
}

func (s *stubAdminProducts) Update(ctx context.Context, p *types.Product) error {
	s.updated = p
	return nil
}

func (s *stubAdminProducts) AdjustStock(ctx context.Context, productID string, delta int) error {
	if s.stockErr != nil {
		return s.stockErr
	}
	if s.deltas == nil {
		s.deltas = make(map[string]int)
	}
	s.deltas[productID] += delta
	return nil
}

func (s *stubAdminProducts) SetAvailability(ctx context.Context, productID string, available bool) error {
	return nil
}

func (s *stubAdminProducts) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type stubImageStore struct {
	key         string
	uploadErr   error
	contentType string
	deleted     []string
}

func (s *stubImageStore) UploadProductImage(ctx context.Context, productID, contentType string, body io.Reader, size int64) (string, error) {
	s.contentType = contentType
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return s.key, nil
}

func (s *stubImageStore) DeleteImage(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func newAdminProductFixture() (*AdminProductHandler, *stubAdminProducts, *stubImageStore) {
	banana := &types.Product{
		ID:        "prod_1",
		Name:      "Banana",
		Price:     decimal.RequireFromString("1.20"),
		Category:  types.CategoryNormal,
		Available: true,
		Stock:     40,
	}
	products := &stubAdminProducts{
		byID: map[string]*types.Product{"prod_1": banana},
		all:  []*types.Product{banana},
	}
	images := &stubImageStore{key: "products/prod_1/abc.jpg"}
	h := NewAdminProductHandler(products, images, catalogConfig(), testValidator(), testLogger())
	return h, products, images
}

func TestAdminProductHandler_RequiresAdmin(t *testing.T) {
	h, _, _ := newAdminProductFixture()
	actor := customerActor("usr_1")

	rec := serve(t, h, http.MethodGet, "/admin/products", nil, &actor)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(types.ErrCodePermissionRole), errorCode(t, rec))

	anon := serve(t, h, http.MethodGet, "/admin/products", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, anon.Code)
}

func TestAdminProductHandler_Create(t *testing.T) {
	h, products, _ := newAdminProductFixture()
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/products", ProductRequest{
		Name:      "Dragon Fruit",
		Price:     "4.80",
		Category:  "exotic",
		Available: true,
		Stock:     12,
	}, &actor)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, products.created)
	assert.Contains(t, products.created.ID, "prod_")
	assert.Equal(t, types.CategoryExotic, products.created.Category)
	assert.True(t, products.created.Price.Equal(decimal.RequireFromString("4.80")))
}

func TestAdminProductHandler_Create_RejectsBadPrice(t *testing.T) {
	h, products, _ := newAdminProductFixture()
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/products", ProductRequest{
		Name:     "Dragon Fruit",
		Price:    "4.eight",
		Category: "exotic",
	}, &actor)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, products.created)
}

func TestAdminProductHandler_Update_PreservesStock(t *testing.T) {
	h, products, _ := newAdminProductFixture()
	actor := adminActor()

	rec := serve(t, h, http.MethodPut, "/admin/products/prod_1", ProductRequest{
		Name:      "Organic Banana",
		Price:     "1.50",
		Category:  "normal",
		Available: true,
		Stock:     0,
	}, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, products.updated)
	assert.Equal(t, "Organic Banana", products.updated.Name)
	// Stock moves only through the stock endpoint.
	assert.Equal(t, 40, products.updated.Stock)
}

func TestAdminProductHandler_AdjustStock(t *testing.T) {
	h, products, _ := newAdminProductFixture()
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/products/prod_1/stock", StockAdjustRequest{Delta: -5}, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -5, products.deltas["prod_1"])
}

func TestAdminProductHandler_AdjustStock_BelowZero(t *testing.T) {
	h, products, _ := newAdminProductFixture()
	products.stockErr = types.NewAppError(types.ErrCodeCheckoutOutOfStock, "insufficient stock", nil)
	actor := adminActor()

	rec := serve(t, h, http.MethodPost, "/admin/products/prod_1/stock", StockAdjustRequest{Delta: -100}, &actor)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeCheckoutOutOfStock), errorCode(t, rec))
}

func TestAdminProductHandler_Delete(t *testing.T) {
	h, products, _ := newAdminProductFixture()
	actor := adminActor()

	rec := serve(t, h, http.MethodDelete, "/admin/products/prod_1", nil, &actor)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"prod_1"}, products.deleted)
}

func TestAdminProductHandler_UploadImage(t *testing.T) {
	h, products, images := newAdminProductFixture()
	products.byID["prod_1"].ImageKey = "products/prod_1/old.jpg"

	router := chi.NewRouter()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPut, "/admin/products/prod_1/image", bytes.NewReader([]byte("jpeg-bytes")))
	req.Header.Set("Content-Type", "image/jpeg")
	actor := adminActor()
	req = req.WithContext(types.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", images.contentType)
	require.NotNil(t, products.updated)
	assert.Equal(t, "products/prod_1/abc.jpg", products.updated.ImageKey)
	// The replaced image is cleaned up once the new key is persisted.
	assert.Equal(t, []string{"products/prod_1/old.jpg"}, images.deleted)
}

func TestAdminProductHandler_UploadImage_StoreFailureKeepsOldImage(t *testing.T) {
	h, products, images := newAdminProductFixture()
	products.byID["prod_1"].ImageKey = "products/prod_1/old.jpg"
	images.uploadErr = types.NewAppError(types.ErrCodeUpstreamStorage, "s3 unavailable", nil)

	router := chi.NewRouter()
	h.RegisterRoutes(router)
	req := httptest.NewRequest(http.MethodPut, "/admin/products/prod_1/image", bytes.NewReader([]byte("jpeg-bytes")))
	req.Header.Set("Content-Type", "image/jpeg")
	req = req.WithContext(types.WithActor(req.Context(), adminActor()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Nil(t, products.updated)
	assert.Empty(t, images.deleted)
}

func TestAdminProductHandler_FeedExport(t *testing.T) {
	h, _, _ := newAdminProductFixture()
	actor := adminActor()

	rec := serve(t, h, http.MethodGet, "/admin/products/feed.json.gz", nil, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer gz.Close()

	var feed []*types.Product
	require.NoError(t, json.NewDecoder(gz).Decode(&feed))
	require.Len(t, feed, 1)
	assert.Equal(t, "Banana", feed[0].Name)
}
