package ledger

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/syncx"
)

// OrderStore is the persistence boundary for orders. Implementations must
// return ErrNotFound for missing ids and unknown external ids.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*Order, error)
	PutOrder(ctx context.Context, o *Order) error
	ListOrders(ctx context.Context) ([]*Order, error)
}

// ProductCatalog is the slice of the catalog the ledger needs: name/price
// snapshots at creation time and restocking when an order is cancelled.
type ProductCatalog interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
	Restock(ctx context.Context, id string, qty int) error
}

// Pricing holds the total computation constants.
type Pricing struct {
	TaxBasisPoints    int // e.g. 1800 = 18%
	ShippingFeeCents  int
	FreeShippingCents int // subtotal strictly above this ships free
}

// Ledger exclusively owns order records. Orders are created once, mutated
// only through TransitionStatus, and never deleted.
type Ledger struct {
	store    OrderStore
	products ProductCatalog
	pricing  Pricing
	locks    *syncx.KeyedMutex // per-order status serialization
	lockWait time.Duration
}

func New(store OrderStore, products ProductCatalog, pricing Pricing, lockWait time.Duration) *Ledger {
	return &Ledger{
		store:    store,
		products: products,
		pricing:  pricing,
		locks:    syncx.NewKeyedMutex(),
		lockWait: lockWait,
	}
}

type CreateLine struct {
	ProductID string
	Variant   string
	Qty       int
}

type CreateOrderInput struct {
	ExternalID string
	UserID     string
	Lines      []CreateLine
	Shipping   ShippingInfo
	Payment    PaymentInfo
}

// CreateOrder assigns identity, snapshots line prices from the catalog and
// computes the fixed totals. Idempotent on ExternalID: a retry returns the
// already created order untouched.
func (l *Ledger) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if in.ExternalID != "" {
		if existing, err := l.store.GetOrderByExternalID(ctx, in.ExternalID); err == nil {
			return existing, nil
		}
	}
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("order needs at least one line")
	}

	items := make([]OrderItem, 0, len(in.Lines))
	subtotal := 0
	for _, ln := range in.Lines {
		if ln.Qty <= 0 {
			return nil, fmt.Errorf("invalid qty %d for product %s", ln.Qty, ln.ProductID)
		}
		p, err := l.products.Get(ctx, ln.ProductID)
		if err != nil {
			return nil, fmt.Errorf("snapshot product %s: %w", ln.ProductID, err)
		}
		items = append(items, OrderItem{
			ProductID:  p.ID,
			Name:       p.Name,
			Variant:    ln.Variant,
			PriceCents: p.PriceCents,
			Qty:        ln.Qty,
		})
		subtotal += p.PriceCents * ln.Qty
	}

	shipping := l.pricing.ShippingFeeCents
	if subtotal > l.pricing.FreeShippingCents {
		shipping = 0
	}
	tax := subtotal * l.pricing.TaxBasisPoints / 10000

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.NewString(),
		ExternalID:    in.ExternalID,
		UserID:        in.UserID,
		Items:         items,
		Shipping:      in.Shipping,
		Payment:       in.Payment,
		SubtotalCents: subtotal,
		ShippingCents: shipping,
		TaxCents:      tax,
		TotalCents:    subtotal + shipping + tax,
		Status:        StatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.store.PutOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// TransitionStatus moves an order along the allowed status path. Serialized
// per order id; transitions on different orders are independent. Cancelling
// returns the order's units to stock; Cancelled is terminal, so the restock
// cannot repeat.
func (l *Ledger) TransitionStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	if !ValidStatus(next) {
		return nil, &InvalidTransitionError{From: "", To: next}
	}
	if err := l.locks.Lock(ctx, orderID, l.lockWait); err != nil {
		return nil, err
	}
	defer l.locks.Unlock(orderID)

	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	if err := l.store.PutOrder(ctx, o); err != nil {
		return nil, err
	}
	if next == StatusCancelled {
		for _, it := range o.Items {
			if err := l.products.Restock(ctx, it.ProductID, it.Qty); err != nil {
				log.Printf("order %s cancelled: restock %s x%d: %v", orderID, it.ProductID, it.Qty, err)
			}
		}
	}
	return o, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*Order, error) {
	return l.store.GetOrder(ctx, id)
}

func (l *Ledger) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return l.store.GetOrderByExternalID(ctx, externalID)
}

func (l *Ledger) ListForUser(ctx context.Context, userID string) ([]*Order, error) {
	all, err := l.store.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Order, 0)
	for _, o := range all {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListFilter narrows the admin order list; zero Limit means no page cap.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

func (l *Ledger) ListAll(ctx context.Context, f ListFilter) ([]*Order, error) {
	all, err := l.store.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Order, 0, len(all))
	for _, o := range all {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sortNewestFirst(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Order{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortNewestFirst(orders []*Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
