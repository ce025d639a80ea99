package catalog

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/shopease/ledger/internal/syncx"
)

// ProductStore is the persistence boundary for product records. Implementations
// must return ErrNotFound for missing ids.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	PutProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context) ([]*Product, error)
}

// Catalog owns product records and is the sole mutator of stock counts.
// Stock mutations are serialized per product id; mutations on different
// products proceed in parallel.
type Catalog struct {
	store    ProductStore
	locks    *syncx.KeyedMutex
	lockWait time.Duration
}

func New(store ProductStore, lockWait time.Duration) *Catalog {
	return &Catalog{store: store, locks: syncx.NewKeyedMutex(), lockWait: lockWait}
}

func (c *Catalog) Get(ctx context.Context, id string) (*Product, error) {
	return c.store.GetProduct(ctx, id)
}

func (c *Catalog) List(ctx context.Context) ([]*Product, error) {
	return c.store.ListProducts(ctx)
}

// ProductInput carries raw admin form data for add/edit.
type ProductInput struct {
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	PriceCents  int      `json:"price_cents"`
	Stock       int      `json:"stock"`
	Colors      []string `json:"colors"`
	Features    []string `json:"features"`
	Warranty    string   `json:"warranty"`
}

func (in *ProductInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("missing product name")
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if in.Stock < 0 {
		return fmt.Errorf("stock must not be negative")
	}
	return nil
}

func (c *Catalog) Add(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &Product{
		ID:          uuid.NewString(),
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Colors:      in.Colors,
		Features:    in.Features,
		Warranty:    in.Warranty,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.PutProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces the editable fields. Stock edits go through the same
// per-product lock as decrement/restock so an admin edit cannot race a
// checkout into a stale count.
func (c *Catalog) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := c.locks.Lock(ctx, id, c.lockWait); err != nil {
		return nil, err
	}
	defer c.locks.Unlock(id)

	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.SKU = in.SKU
	p.Name = in.Name
	p.Description = in.Description
	p.Category = in.Category
	p.PriceCents = in.PriceCents
	p.Stock = in.Stock
	p.Colors = in.Colors
	p.Features = in.Features
	p.Warranty = in.Warranty
	p.UpdatedAt = time.Now().UTC()
	if err := c.store.PutProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	return c.store.DeleteProduct(ctx, id)
}

// DecrementStock atomically reduces stock by qty. Fails with
// *InsufficientStockError when qty exceeds the current count, leaving the
// record untouched, and with syncx.ErrBusy when the per-product lock cannot
// be acquired in time.
func (c *Catalog) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("decrement qty must be positive, got %d", qty)
	}
	if err := c.locks.Lock(ctx, id, c.lockWait); err != nil {
		return err
	}
	defer c.locks.Unlock(id)

	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if p.Stock < qty {
		return &InsufficientStockError{ProductID: id, Required: qty, Available: p.Stock}
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	return c.store.PutProduct(ctx, p)
}

// Restock returns qty units to stock. Used by reservation rollback and
// cancellation, so it must not fail on anything but a missing product.
func (c *Catalog) Restock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("restock qty must be positive, got %d", qty)
	}
	if err := c.locks.Lock(ctx, id, c.lockWait); err != nil {
		return err
	}
	defer c.locks.Unlock(id)

	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	return c.store.PutProduct(ctx, p)
}

// AddReview appends a review and recomputes the product rating as the mean
// of all review ratings, rounded to one decimal place.
func (c *Catalog) AddReview(ctx context.Context, id string, author string, rating int, text string) (*Product, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if err := c.locks.Lock(ctx, id, c.lockWait); err != nil {
		return nil, err
	}
	defer c.locks.Unlock(id)

	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p.Reviews = append(p.Reviews, Review{
		ID:        uuid.NewString(),
		Author:    author,
		Rating:    rating,
		Text:      text,
		Verified:  true,
		CreatedAt: now,
	})
	sum := 0
	for _, rv := range p.Reviews {
		sum += rv.Rating
	}
	p.Rating = math.Round(float64(sum)/float64(len(p.Reviews))*10) / 10
	p.UpdatedAt = now
	if err := c.store.PutProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
