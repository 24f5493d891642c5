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

// CartStore is the cart behavior the API needs.
type CartStore interface {
	Add(ctx context.Context, product domain.Product, quantity int, size, color string) error
	Remove(ctx context.Context, productID, size, color string) error
	UpdateQuantity(ctx context.Context, productID, size, color string, quantity int) error
	Clear(ctx context.Context) error
	Snapshot() domain.Cart
	SyncState() domain.SyncState
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	store  CartStore
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(store CartStore, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		store:  store,
		logger: logger,
	}
}

// --- Request DTOs ---

// ProductRequest carries the catalog display fields copied into a line or entry.
type ProductRequest struct {
	ID       string `json:"id" validate:"required,max=128"`
	Name     string `json:"name" validate:"max=500"`
	Price    int64  `json:"price" validate:"gte=0"`
	ImageURL string `json:"image_url"`
	Brand    string `json:"brand"`
}

func (p ProductRequest) toDomain() domain.Product {
	return domain.Product{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
		Brand:    p.Brand,
	}
}

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	Product  ProductRequest `json:"product" validate:"required"`
	Quantity int            `json:"quantity" validate:"gte=1"`
	Size     string         `json:"size"`
	Color    string         `json:"color"`
}

// UpdateQuantityRequest is the JSON request body for updating a line's quantity.
// Quantities below 1 are accepted and ignored by the store.
type UpdateQuantityRequest struct {
	Size     string `json:"size"`
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

// --- Response DTOs ---

type cartResponse struct {
	Lines    []domain.CartLine `json:"lines"`
	Count    int               `json:"count"`
	Subtotal int64             `json:"subtotal"`
	Sync     domain.SyncState  `json:"sync"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, http.StatusOK)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.store.Add(r.Context(), req.Product.toDomain(), req.Quantity, req.Size, req.Color); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.store.UpdateQuantity(r.Context(), productID, req.Size, req.Color, req.Quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}?size=&color=
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	q := r.URL.Query()
	if err := h.store.Remove(r.Context(), productID, q.Get("size"), q.Get("color")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, http.StatusOK)
}

func (h *CartHandler) writeCart(w http.ResponseWriter, status int) {
	cart := h.store.Snapshot()
	httputil.WriteData(w, status, cartResponse{
		Lines:    cart.Lines,
		Count:    cart.Count(),
		Subtotal: cart.Subtotal(),
		Sync:     h.store.SyncState(),
	})
}
