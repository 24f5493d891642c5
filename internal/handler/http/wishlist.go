package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good12834/shoestore/internal/domain"
	apperrors "github.com/good12834/shoestore/pkg/errors"
	"github.com/good12834/shoestore/pkg/httputil"
	"github.com/good12834/shoestore/pkg/validator"
)

// WishlistStore is the wishlist behavior the API needs.
type WishlistStore interface {
	Add(ctx context.Context, product domain.Product) error
	Remove(ctx context.Context, productID string) error
	Contains(productID string) bool
	Toggle(ctx context.Context, product domain.Product) (bool, error)
	Clear(ctx context.Context) error
	Resume(ctx context.Context) error
	Snapshot() domain.Wishlist
	SyncState() domain.SyncState
}

// WishlistHandler handles HTTP requests for wishlist endpoints.
type WishlistHandler struct {
	store  WishlistStore
	logger *slog.Logger
}

// NewWishlistHandler creates a new wishlist HTTP handler.
func NewWishlistHandler(store WishlistStore, logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{
		store:  store,
		logger: logger,
	}
}

// WishlistItemRequest is the JSON body for add and toggle.
type WishlistItemRequest struct {
	Product ProductRequest `json:"product" validate:"required"`
}

type wishlistResponse struct {
	Entries []domain.WishlistEntry `json:"entries"`
	Count   int                    `json:"count"`
	Sync    domain.SyncState       `json:"sync"`
}

// GetWishlist handles GET /api/v1/wishlist
func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	h.writeWishlist(w, http.StatusOK)
}

// AddItem handles POST /api/v1/wishlist/items
func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req WishlistItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.store.Add(r.Context(), req.Product.toDomain()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeWishlist(w, http.StatusOK)
}

// CheckItem handles GET /api/v1/wishlist/items/{productId}
func (h *WishlistHandler) CheckItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, map[string]bool{"exists": h.store.Contains(productID)})
}

// RemoveItem handles DELETE /api/v1/wishlist/items/{productId}
func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	if err := h.store.Remove(r.Context(), productID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeWishlist(w, http.StatusOK)
}

// Toggle handles POST /api/v1/wishlist/toggle
func (h *WishlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req WishlistItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	added, err := h.store.Toggle(r.Context(), req.Product.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]bool{"added": added})
}

// ClearWishlist handles DELETE /api/v1/wishlist
func (h *WishlistHandler) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeWishlist(w, http.StatusOK)
}

// Resume handles POST /api/v1/wishlist/sync/resume. It runs one pull that
// bypasses an open circuit.
func (h *WishlistHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Resume(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeWishlist(w, http.StatusOK)
}

func (h *WishlistHandler) writeWishlist(w http.ResponseWriter, status int) {
	wl := h.store.Snapshot()
	httputil.WriteData(w, status, wishlistResponse{
		Entries: wl.Entries,
		Count:   wl.Len(),
		Sync:    h.store.SyncState(),
	})
}
