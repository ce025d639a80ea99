package ledger

import "time"

type Order struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"` // client idempotency key
	UserID     string `json:"user_id"`

	Items    []OrderItem  `json:"items"`
	Shipping ShippingInfo `json:"shipping_info"`
	Payment  PaymentInfo  `json:"payment_info"`

	// Monetary totals are fixed at creation time from line-item snapshots
	// and never recomputed afterwards.
	SubtotalCents int `json:"subtotal_cents"`
	ShippingCents int `json:"shipping_cents"`
	TaxCents      int `json:"tax_cents"`
	TotalCents    int `json:"total_cents"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderItem snapshots name and unit price at creation time; later catalog
// edits do not touch committed orders.
type OrderItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Variant    string `json:"variant,omitempty"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
}

type ShippingInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

// PaymentInfo is a descriptor only; no capture happens here.
type PaymentInfo struct {
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
}

func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp
}
