package http

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/good12834/shoestore/internal/domain"
)

// sampleCart returns a cart with two lines, suitable for test assertions.
func sampleCart() domain.Cart {
	return domain.Cart{Lines: []domain.CartLine{
		{ProductID: "p1", Name: "Runner", UnitPrice: 8999, Quantity: 2, Size: "38", Color: "black"},
		{ProductID: "p2", Name: "Trail", UnitPrice: 12050, Quantity: 1, Size: "42", Color: "white"},
	}}
}

func expectCartRead(ts *testServer, cart domain.Cart) {
	ts.cart.On("Snapshot").Return(cart)
	ts.cart.On("SyncState").Return(domain.SyncState{})
}

// ============================================================================
// GET /api/v1/cart
// ============================================================================

func TestGetCart_ReturnsLinesAndAggregates(t *testing.T) {
	ts := newTestServer(t, nil)
	expectCartRead(ts, sampleCart())

	rec := ts.do(t, http.MethodGet, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, float64(3), data["count"])
	assert.Equal(t, float64(2*8999+12050), data["subtotal"])
	assert.Len(t, data["lines"], 2)
	assert.Contains(t, data, "sync")
}

func TestGetCart_EmptyCartHasEmptyLines(t *testing.T) {
	ts := newTestServer(t, nil)
	expectCartRead(ts, domain.Cart{Lines: []domain.CartLine{}})

	rec := ts.do(t, http.MethodGet, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, []any{}, data["lines"])
	assert.Equal(t, float64(0), data["count"])
}

// ============================================================================
// POST /api/v1/cart/items
// ============================================================================

func TestAddItem_Success(t *testing.T) {
	ts := newTestServer(t, nil)
	want := domain.Product{ID: "p1", Name: "Runner", Price: 8999, Brand: "Acme"}
	ts.cart.On("Add", mock.Anything, want, 2, "38", "black").Return(nil).Once()
	expectCartRead(ts, sampleCart())

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product":  map[string]any{"id": "p1", "name": "Runner", "price": 8999, "brand": "Acme"},
		"quantity": 2,
		"size":     "38",
		"color":    "black",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	ts.cart.AssertExpectations(t)
}

func TestAddItem_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{
			name:  "zero quantity",
			body:  map[string]any{"product": map[string]any{"id": "p1"}, "quantity": 0},
			field: "quantity",
		},
		{
			name:  "missing product id",
			body:  map[string]any{"product": map[string]any{"name": "Runner"}, "quantity": 1},
			field: "product.id",
		},
		{
			name:  "negative price",
			body:  map[string]any{"product": map[string]any{"id": "p1", "price": -1}, "quantity": 1},
			field: "product.price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
			assert.Contains(t, resp.Error.Fields, tt.field)
			ts.cart.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAddItem_UnknownFieldRejected(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product":  map[string]any{"id": "p1"},
		"quantity": 1,
		"variant":  "x",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeResponse(t, rec).Error.Code)
}

func TestAddItem_PersistFailureIs500(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cart.On("Add", mock.Anything, mock.Anything, 1, "", "").Return(errors.New("persist cart: disk full"))

	rec := ts.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product":  map[string]any{"id": "p1"},
		"quantity": 1,
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "disk full")
}

// ============================================================================
// PUT / DELETE /api/v1/cart/items/{productId}
// ============================================================================

func TestUpdateItemQuantity_PassesQuantityThrough(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cart.On("UpdateQuantity", mock.Anything, "p1", "38", "black", 0).Return(nil).Once()
	expectCartRead(ts, sampleCart())

	rec := ts.do(t, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{
		"size": "38", "color": "black", "quantity": 0,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	ts.cart.AssertExpectations(t)
}

func TestRemoveItem_UsesQueryKey(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cart.On("Remove", mock.Anything, "p1", "38", "black").Return(nil).Once()
	expectCartRead(ts, domain.Cart{})

	rec := ts.do(t, http.MethodDelete, "/api/v1/cart/items/p1?size=38&color=black", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	ts.cart.AssertExpectations(t)
}

func TestClearCart(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cart.On("Clear", mock.Anything).Return(nil).Once()
	expectCartRead(ts, domain.Cart{Lines: []domain.CartLine{}})

	rec := ts.do(t, http.MethodDelete, "/api/v1/cart", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	ts.cart.AssertExpectations(t)
}
