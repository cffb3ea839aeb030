package domain

import (
	"encoding/json"
	"fmt"
)

// CartItem is one product line held in the cart.
type CartItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url"`
	Amount   int     `json:"amount"`
}

// UnmarshalJSON accepts the storefront's legacy "title" and "image" keys
// in place of "name" and "image_url".
func (i *CartItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       int64   `json:"id"`
		Name     string  `json:"name"`
		Title    string  `json:"title"`
		Price    float64 `json:"price"`
		ImageURL string  `json:"image_url"`
		Image    string  `json:"image"`
		Amount   int     `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = CartItem{
		ID:       raw.ID,
		Name:     firstNonEmpty(raw.Name, raw.Title),
		Price:    raw.Price,
		ImageURL: firstNonEmpty(raw.ImageURL, raw.Image),
		Amount:   raw.Amount,
	}
	return nil
}

// Cart is the ordered list of lines, unique by product ID.
type Cart []CartItem

// FindItemIndex returns the index of the line for productID, or -1.
func (c Cart) FindItemIndex(productID int64) int {
	for i := range c {
		if c[i].ID == productID {
			return i
		}
	}
	return -1
}

// AmountOf returns the held quantity of productID, or 0 when absent.
func (c Cart) AmountOf(productID int64) int {
	if i := c.FindItemIndex(productID); i >= 0 {
		return c[i].Amount
	}
	return 0
}

// Clone returns a copy that shares no backing array with c. A nil cart
// clones to an empty, non-nil cart so it encodes as [].
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// WithAmount returns a copy with the line at index i set to amount.
func (c Cart) WithAmount(i, amount int) Cart {
	out := c.Clone()
	out[i].Amount = amount
	return out
}

// Append returns a copy with item added as the last line.
func (c Cart) Append(item CartItem) Cart {
	out := make(Cart, len(c), len(c)+1)
	copy(out, c)
	return append(out, item)
}

// Without returns a copy with the line for productID removed.
func (c Cart) Without(productID int64) Cart {
	out := make(Cart, 0, len(c))
	for _, item := range c {
		if item.ID != productID {
			out = append(out, item)
		}
	}
	return out
}

// Amounts maps each product ID to its held quantity.
func (c Cart) Amounts() map[int64]int {
	out := make(map[int64]int, len(c))
	for _, item := range c {
		out[item.ID] = item.Amount
	}
	return out
}

// ItemCount returns the total number of units across all lines.
func (c Cart) ItemCount() int {
	var n int
	for _, item := range c {
		n += item.Amount
	}
	return n
}

// Validate reports the first line that breaks the cart's shape: a
// non-positive amount or a duplicated product ID.
func (c Cart) Validate() error {
	seen := make(map[int64]struct{}, len(c))
	for i, item := range c {
		if item.Amount < 1 {
			return fmt.Errorf("line %d (product %d): amount %d below 1", i, item.ID, item.Amount)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("line %d: duplicate product %d", i, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// Stock is the quantity of a product available for sale.
type Stock struct {
	ID     int64 `json:"id"`
	Amount int   `json:"amount"`
}

// Product is catalog metadata for a purchasable item.
type Product struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url"`
}

// NewCartItem builds a line for p holding amount units.
func NewCartItem(p Product, amount int) CartItem {
	return CartItem{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
		Amount:   amount,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
