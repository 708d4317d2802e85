package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/pgtx"
)

// Store is the subset of ProductRepository the handler needs.
type Store interface {
	List(ctx context.Context, f Filter) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	UpdatePricing(ctx context.Context, id string, price *decimal.Decimal, discountPercentage *int) (*domain.Product, error)
	SetFlags(ctx context.Context, id string, featured, trending *bool) (*domain.Product, error)
	Restock(ctx context.Context, id string, quantity int) (*domain.Product, error)
}

const maxListLimit = 50

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// HandleListProducts lists the catalog newest first. ?featured=true and
// ?trending=true narrow it.
func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.list(w, r, Filter{
		Featured: q.Get("featured") == "true",
		Trending: q.Get("trending") == "true",
	})
}

func (h *Handler) HandleListFeatured(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, Filter{Featured: true})
}

func (h *Handler) HandleListTrending(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, Filter{Trending: true})
}

// HandleListBestSellers lists products that have sold, most sold first.
// ?limit caps the list (default 10, at most 50).
func (h *Handler) HandleListBestSellers(w http.ResponseWriter, r *http.Request) {
	limit := DefaultBestSellerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = n
	}
	h.list(w, r, Filter{BestSellers: true, Limit: limit})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f Filter) {
	products, err := h.store.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list products", "error", err, "filter", f)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("products listed", "count", len(products), "path", r.URL.Path)
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.store.Get(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

type createProductRequest struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage int             `json:"discount_percentage"`
	Stock              int             `json:"stock"`
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Stock < 0 {
		h.writeError(w, http.StatusBadRequest, "stock must not be negative")
		return
	}

	product := &domain.Product{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Stock:       req.Stock,
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := product.SetPricing(req.Price, req.DiscountPercentage); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Create(r.Context(), product); err != nil {
		if errors.Is(err, ErrDuplicateProduct) {
			h.writeError(w, http.StatusConflict, "product already exists")
			return
		}
		h.logger.Error("failed to create product", "error", err, "product_id", product.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "stock", product.Stock)
	h.writeJSON(w, http.StatusCreated, product)
}

type pricingRequest struct {
	Price              *decimal.Decimal `json:"price"`
	DiscountPercentage *int             `json:"discount_percentage"`
}

func (h *Handler) HandleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req pricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Price == nil && req.DiscountPercentage == nil {
		h.writeError(w, http.StatusBadRequest, "price or discount_percentage is required")
		return
	}

	product, err := h.store.UpdatePricing(r.Context(), productID, req.Price, req.DiscountPercentage)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDiscount) || errors.Is(err, domain.ErrNegativePrice) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeStoreError(w, err, "failed to update pricing", "product_id", productID)
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.logger.Info("product pricing updated", "product_id", productID, "price", product.Price.StringFixed(2), "discount_percentage", product.DiscountPercentage)
	h.writeJSON(w, http.StatusOK, product)
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleRestock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	product, err := h.store.Restock(r.Context(), productID, req.Quantity)
	if err != nil {
		h.writeStoreError(w, err, "failed to restock product", "product_id", productID, "quantity", req.Quantity)
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.logger.Info("product restocked", "product_id", productID, "quantity", req.Quantity, "stock", product.Stock)
	h.writeJSON(w, http.StatusOK, product)
}

type flagsRequest struct {
	Featured *bool `json:"is_featured"`
	Trending *bool `json:"is_trending"`
}

func (h *Handler) HandleSetFlags(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("id")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req flagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Featured == nil && req.Trending == nil {
		h.writeError(w, http.StatusBadRequest, "is_featured or is_trending is required")
		return
	}

	product, err := h.store.SetFlags(r.Context(), productID, req.Featured, req.Trending)
	if err != nil {
		h.writeStoreError(w, err, "failed to set product flags", "product_id", productID)
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.logger.Info("product flags updated", "product_id", productID, "is_featured", product.IsFeatured, "is_trending", product.IsTrending)
	h.writeJSON(w, http.StatusOK, product)
}

// writeStoreError answers lock contention with 503 and Retry-After so the
// caller retries; anything else is a 500.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	if errors.Is(err, pgtx.ErrContention) {
		h.logger.Warn(msg, append(attrs, "error", err)...)
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusServiceUnavailable, "busy, retry later")
		return
	}
	h.logger.Error(msg, append(attrs, "error", err)...)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
