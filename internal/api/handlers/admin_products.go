package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"

	"fruitbox/internal/config"
	"fruitbox/internal/core"
	"fruitbox/internal/db"
	"fruitbox/internal/types"
)

// maxImageUploadSize caps product image uploads at 5 MB.
const maxImageUploadSize = 5 << 20

// AdminProductRepo is the product access contract for the back office.
type AdminProductRepo interface {
	Create(ctx context.Context, p *types.Product) error
	GetByID(ctx context.Context, id string) (*types.Product, error)
	List(ctx context.Context, f db.ProductFilter) ([]*types.Product, int, error)
	Update(ctx context.Context, p *types.Product) error
	AdjustStock(ctx context.Context, productID string, delta int) error
	SetAvailability(ctx context.Context, productID string, available bool) error
	Delete(ctx context.Context, id string) error
}

// ProductImageStore uploads and deletes product imagery.
type ProductImageStore interface {
	UploadProductImage(ctx context.Context, productID, contentType string, body io.Reader, size int64) (string, error)
	DeleteImage(ctx context.Context, key string) error
}

// ProductRequest is the body for product create and update.
type ProductRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	Price       string `json:"price" validate:"required,money"`
	Category    string `json:"category" validate:"required,category"`
	Available   bool   `json:"available"`
	Stock       int    `json:"stock" validate:"min=0"`
}

// StockAdjustRequest is the body for POST /{id}/stock. Delta may be negative
// (manual correction) but never zero.
type StockAdjustRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// AdminProductHandler manages the product catalog: CRUD, stock adjustments,
// image uploads, and the gzip feed export consumed by the marketing site.
type AdminProductHandler struct {
	products  AdminProductRepo
	images    ProductImageStore
	cfg       config.CatalogConfig
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminProductHandler creates an AdminProductHandler with the provided
// dependencies.
func NewAdminProductHandler(products AdminProductRepo, images ProductImageStore, cfg config.CatalogConfig, v *core.Validator, logger *slog.Logger) *AdminProductHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminProductHandler{
		products:  products,
		images:    images,
		cfg:       cfg,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the admin product endpoints.
func (h *AdminProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/products", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/feed.json.gz", h.HandleFeedExport)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/stock", h.HandleAdjustStock)
		r.Put("/{id}/image", h.HandleUploadImage)
	})
}

// HandleList processes GET /v1/admin/products. Unlike the storefront
// listing, unavailable products are included.
func (h *AdminProductHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	page := parsePagination(r, h.cfg.DefaultPageSize, h.cfg.MaxPageSize)
	filter := db.ProductFilter{Limit: page.Limit, Offset: page.Offset}
	if raw := r.URL.Query().Get("category"); raw != "" {
		filter.Category = types.ProductCategory(raw)
	}

	products, total, err := h.products.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: products,
		Meta: listMeta(total, page, len(products)),
	})
}

// HandleCreate processes POST /v1/admin/products.
func (h *AdminProductHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product := &types.Product{
		ID:          "prod_" + uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Price:       decimal.RequireFromString(req.Price),
		Category:    types.ProductCategory(req.Category),
		Available:   req.Available,
		Stock:       req.Stock,
	}

	if err := h.products.Create(r.Context(), product); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "product created", "product_id", product.ID, "name", product.Name)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: product})
}

// HandleGet processes GET /v1/admin/products/{id}.
func (h *AdminProductHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	product, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: product})
}

// HandleUpdate processes PUT /v1/admin/products/{id}. Stock is managed via
// the stock endpoint, not here; the update replaces the descriptive fields.
func (h *AdminProductHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	product, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product.Name = req.Name
	product.Description = req.Description
	product.Price = decimal.RequireFromString(req.Price)
	product.Category = types.ProductCategory(req.Category)
	product.Available = req.Available

	if err := h.products.Update(r.Context(), product); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: product})
}

// HandleDelete processes DELETE /v1/admin/products/{id} (soft delete).
func (h *AdminProductHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAdjustStock processes POST /v1/admin/products/{id}/stock, applying a
// signed delta. Decrements below zero fail with checkout_out_of_stock.
func (h *AdminProductHandler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	var req StockAdjustRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	productID := chi.URLParam(r, "id")
	if err := h.products.AdjustStock(r.Context(), productID, req.Delta); err != nil {
		core.Error(w, r, err)
		return
	}

	product, err := h.products.GetByID(r.Context(), productID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: product})
}

// HandleUploadImage processes PUT /v1/admin/products/{id}/image. The body is
// the raw image bytes; Content-Type selects the stored extension. The
// previous image, if any, is deleted after the new key is saved.
func (h *AdminProductHandler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	product, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxImageUploadSize)
	defer body.Close()

	key, err := h.images.UploadProductImage(r.Context(), product.ID, r.Header.Get("Content-Type"), body, r.ContentLength)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	previousKey := product.ImageKey
	product.ImageKey = key
	if err := h.products.Update(r.Context(), product); err != nil {
		core.Error(w, r, err)
		return
	}

	if previousKey != "" {
		if err := h.images.DeleteImage(r.Context(), previousKey); err != nil {
			h.logger.WarnContext(r.Context(), "failed to delete replaced product image",
				"product_id", product.ID,
				"key", previousKey,
				"error", err,
			)
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: product})
}

// HandleFeedExport processes GET /v1/admin/products/feed.json.gz: the full
// catalog as a gzip-compressed JSON array, streamed for the nightly
// marketing-site import.
func (h *AdminProductHandler) HandleFeedExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, types.RoleAdmin); !ok {
		return
	}

	products, _, err := h.products.List(r.Context(), db.ProductFilter{Limit: 10000})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="products.json.gz"`)
	w.WriteHeader(http.StatusOK)

	gz, err := gzip.NewWriterLevel(w, h.cfg.FeedGzipLevel)
	if err != nil {
		// Invalid level is caught by config validation; fall back rather
		// than fail the export.
		gz = gzip.NewWriter(w)
	}
	defer gz.Close()

	if err := json.NewEncoder(gz).Encode(products); err != nil {
		h.logger.ErrorContext(r.Context(), "product feed export failed mid-stream", "error", err)
	}
}

func (h *AdminProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (ProductRequest, bool) {
	var req ProductRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	return req, true
}
