package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/identity"
)

type Store interface {
	Add(ctx context.Context, userID, productID string) (bool, error)
	List(ctx context.Context, userID string) ([]domain.WishlistItem, error)
	Remove(ctx context.Context, userID, productID string) (bool, error)
}

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

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserID(r.Context())

	items, err := h.store.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list wishlist", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, items)
}

type addRequest struct {
	ProductID string `json:"product_id"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	userID := identity.UserID(r.Context())

	added, err := h.store.Add(r.Context(), userID, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to add to wishlist", "error", err, "user_id", userID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !added {
		h.writeJSON(w, http.StatusOK, map[string]string{"detail": "already in wishlist"})
		return
	}

	h.logger.Info("wishlist item added", "user_id", userID, "product_id", productID)
	h.writeJSON(w, http.StatusCreated, map[string]string{"detail": "added to wishlist"})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}
	userID := identity.UserID(r.Context())

	removed, err := h.store.Remove(r.Context(), userID, productID)
	if err != nil {
		h.logger.Error("failed to remove from wishlist", "error", err, "user_id", userID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !removed {
		h.writeError(w, http.StatusNotFound, "not in wishlist")
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
