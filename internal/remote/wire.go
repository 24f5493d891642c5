package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/good12834/shoestore/internal/domain"
)

// The backend serves rows straight from SQL, so ids may be numbers, prices
// may be decimal strings in major units, and field names are not consistent
// between endpoints. The wire types below absorb that.

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// money decodes a price in major units (number or decimal string) into cents.
type money int64

func (m *money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid price %s: %w", data, err)
	}
	cents := math.Round(f * 100)
	if math.IsNaN(cents) || math.IsInf(cents, 0) || cents >= math.MaxInt64 || cents < math.MinInt64 {
		return fmt.Errorf("price %s out of range", data)
	}
	*m = money(cents)
	return nil
}

// flexInt decodes a JSON number or numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", data, err)
	}
	*f = flexInt(n)
	return nil
}

type wireCartLine struct {
	ProductID      flexString `json:"product_id"`
	ProductIDCamel flexString `json:"productId"`
	Name           string     `json:"name"`
	ImageURL       string     `json:"image_url"`
	Brand          string     `json:"brand"`
	Price          money      `json:"price"`
	UnitPrice      *money     `json:"unit_price"`
	Quantity       flexInt    `json:"quantity"`
	Size           flexString `json:"size"`
	Color          string     `json:"color"`
}

func (w wireCartLine) toDomain() domain.CartLine {
	id := w.ProductID
	if id == "" {
		id = w.ProductIDCamel
	}
	price := w.Price
	if w.UnitPrice != nil {
		price = *w.UnitPrice
	}
	return domain.CartLine{
		ProductID: string(id),
		Name:      w.Name,
		ImageURL:  w.ImageURL,
		Brand:     w.Brand,
		UnitPrice: int64(price),
		Quantity:  int(w.Quantity),
		Size:      string(w.Size),
		Color:     w.Color,
	}
}

type wireWishlistEntry struct {
	ProductID      flexString      `json:"product_id"`
	ProductIDCamel flexString      `json:"productId"`
	ID             flexString      `json:"id"`
	Name           string          `json:"name"`
	Price          money           `json:"price"`
	ImageURL       string          `json:"image_url"`
	Brand          string          `json:"brand"`
	AddedAt        json.RawMessage `json:"added_at"`
	CreatedAt      json.RawMessage `json:"created_at"`
}

func (w wireWishlistEntry) toDomain() domain.WishlistEntry {
	id := w.ProductID
	if id == "" {
		id = w.ProductIDCamel
	}
	if id == "" {
		id = w.ID
	}
	entry := domain.WishlistEntry{
		ProductID: string(id),
		Name:      w.Name,
		Price:     int64(w.Price),
		ImageURL:  w.ImageURL,
		Brand:     w.Brand,
	}
	for _, raw := range []json.RawMessage{w.AddedAt, w.CreatedAt} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, &entry.AddedAt); err == nil {
			entry.AddedAt = entry.AddedAt.UTC()
			break
		}
	}
	return entry
}

// decodeList accepts a bare JSON array or a {"data": [...]} envelope.
func decodeList[T any](body []byte) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	switch body[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	case '{':
		var envelope struct {
			Data *[]T `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if envelope.Data == nil {
			return nil, fmt.Errorf("response envelope has no data list")
		}
		return *envelope.Data, nil
	default:
		return nil, fmt.Errorf("unexpected response shape")
	}
}

// cartLineRequest is the POST /cart body.
type cartLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// wishlistEntryRequest is the POST /wishlist body.
type wishlistEntryRequest struct {
	ProductID string `json:"product_id"`
}
