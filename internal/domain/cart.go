package domain

// Product carries the catalog display fields copied into a line or entry at
// add time. Prices are in cents.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"image_url,omitempty"`
	Brand    string `json:"brand,omitempty"`
}

// LineKey identifies a cart line. At most one line exists per key.
type LineKey struct {
	ProductID string
	Size      string
	Color     string
}

// CartLine is a single purchasable entry in the cart.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	Brand     string `json:"brand,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// Key returns the line's identity key.
func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.Size, Color: l.Color}
}

// NewCartLine copies the product's display fields into a new line.
func NewCartLine(p Product, quantity int, size, color string) CartLine {
	return CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		ImageURL:  p.ImageURL,
		Brand:     p.Brand,
		UnitPrice: p.Price,
		Quantity:  quantity,
		Size:      size,
		Color:     color,
	}
}

// Cart is a point-in-time copy of the cart's lines.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

// Count returns the sum of all line quantities.
func (c Cart) Count() int {
	var count int
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}

// Subtotal returns the sum of unit price times quantity, in cents.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.UnitPrice * int64(line.Quantity)
	}
	return total
}

// Total is an alias for Subtotal.
func (c Cart) Total() int64 {
	return c.Subtotal()
}

// Find returns the index of the line with the given key, or -1.
func (c Cart) Find(key LineKey) int {
	for i := range c.Lines {
		if c.Lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with c.
func (c Cart) Clone() Cart {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}

// NormalizeLines folds lines sharing a key into one, the later line
// winning but keeping the earlier position, and drops lines with a
// quantity below 1. It returns the normalized lines and how many input
// lines were discarded.
func NormalizeLines(lines []CartLine) ([]CartLine, int) {
	out := make([]CartLine, 0, len(lines))
	index := make(map[LineKey]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		if i, ok := index[line.Key()]; ok {
			out[i] = line
			continue
		}
		index[line.Key()] = len(out)
		out = append(out, line)
	}
	return out, len(lines) - len(out)
}
