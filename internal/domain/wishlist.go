package domain

import "time"

// WishlistEntry is one saved product. ProductID is its identity.
type WishlistEntry struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	ImageURL  string    `json:"image_url,omitempty"`
	Brand     string    `json:"brand,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// NewWishlistEntry copies the product's display fields and stamps addedAt in UTC.
func NewWishlistEntry(p Product, addedAt time.Time) WishlistEntry {
	return WishlistEntry{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
		Brand:     p.Brand,
		AddedAt:   addedAt.UTC(),
	}
}

// Wishlist is a point-in-time copy of the wishlist entries.
type Wishlist struct {
	Entries []WishlistEntry `json:"entries"`
}

// Len returns the number of entries.
func (w Wishlist) Len() int {
	return len(w.Entries)
}

// Contains reports whether productID is in the wishlist.
func (w Wishlist) Contains(productID string) bool {
	return w.Find(productID) >= 0
}

// Find returns the index of the entry for productID, or -1.
func (w Wishlist) Find(productID string) int {
	for i := range w.Entries {
		if w.Entries[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with w.
func (w Wishlist) Clone() Wishlist {
	entries := make([]WishlistEntry, len(w.Entries))
	copy(entries, w.Entries)
	return Wishlist{Entries: entries}
}

// NormalizeEntries folds entries for the same product into one, the later
// entry winning but keeping the earlier position, and drops entries with
// no product id. It returns the normalized entries and how many input
// entries were discarded.
func NormalizeEntries(entries []WishlistEntry) ([]WishlistEntry, int) {
	out := make([]WishlistEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		if e.ProductID == "" {
			continue
		}
		if i, ok := index[e.ProductID]; ok {
			out[i] = e
			continue
		}
		index[e.ProductID] = len(out)
		out = append(out, e)
	}
	return out, len(entries) - len(out)
}
