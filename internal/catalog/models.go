package catalog

import "time"

type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	PriceCents  int       `json:"price_cents"`
	Stock       int       `json:"stock"`
	Rating      float64   `json:"rating"` // mean of review ratings, one decimal
	Reviews     []Review  `json:"reviews,omitempty"`
	Colors      []string  `json:"colors,omitempty"`
	Features    []string  `json:"features,omitempty"`
	Warranty    string    `json:"warranty,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Review struct {
	ID        string    `json:"id"`
	Author    string    `json:"author,omitempty"`
	Rating    int       `json:"rating"` // 1..5
	Text      string    `json:"text,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy so store implementations can hand out records
// without aliasing internal state.
func (p *Product) Clone() *Product {
	cp := *p
	cp.Reviews = append([]Review(nil), p.Reviews...)
	cp.Colors = append([]string(nil), p.Colors...)
	cp.Features = append([]string(nil), p.Features...)
	return &cp
}
