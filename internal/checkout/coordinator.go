package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopease/ledger/internal/inventory"
	"github.com/shopease/ledger/internal/ledger"
	"github.com/shopease/ledger/internal/syncx"
)

var (
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrInvalidQuantity = errors.New("cart line quantity must be positive")
	// ErrCreationFailed wraps an internal failure after stock was reserved;
	// the reservation is rolled back before the error is returned.
	ErrCreationFailed = errors.New("order creation failed")
)

// attempt states, in order. Aborted is reachable from any non-terminal state.
type State string

const (
	StateValidating State = "Validating"
	StateReserving  State = "Reserving"
	StateCreating   State = "Creating"
	StateConfirmed  State = "Confirmed"
	StateAborted    State = "Aborted"
)

type CartLine struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Qty       int    `json:"qty"`
}

type Request struct {
	ExternalID string
	UserID     string
	Lines      []CartLine
	Shipping   ledger.ShippingInfo
	Payment    ledger.PaymentInfo
}

// Coordinator orchestrates cart validation, inventory reservation and order
// creation as a single logical transaction with rollback on any failure.
type Coordinator struct {
	reserver *inventory.Reserver
	orders   *ledger.Ledger
	locks    *syncx.KeyedMutex // serializes attempts per external id
	lockWait time.Duration
}

func New(reserver *inventory.Reserver, orders *ledger.Ledger, lockWait time.Duration) *Coordinator {
	return &Coordinator{
		reserver: reserver,
		orders:   orders,
		locks:    syncx.NewKeyedMutex(),
		lockWait: lockWait,
	}
}

// Checkout runs one attempt to completion. Sequencing guarantees that no
// order is ever created for unavailable stock and no stock is permanently
// lost without a corresponding committed order. Idempotent on ExternalID:
// attempts for the same external id are serialized, so of two concurrent
// duplicate submissions one creates the order and the other returns it.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (*ledger.Order, error) {
	st := StateValidating

	if req.ExternalID != "" {
		if err := c.locks.Lock(ctx, req.ExternalID, c.lockWait); err != nil {
			return nil, err
		}
		defer c.locks.Unlock(req.ExternalID)
		if existing, err := c.orders.GetByExternalID(ctx, req.ExternalID); err == nil {
			return existing, nil
		}
	}

	lines, err := normalize(req.Lines)
	if err != nil {
		return nil, c.abort(req.ExternalID, st, err)
	}

	st = StateReserving
	res, err := c.reserver.Reserve(ctx, req.ExternalID, toInventoryLines(lines))
	if err != nil {
		return nil, c.abort(req.ExternalID, st, err)
	}

	st = StateCreating
	order, err := c.orders.CreateOrder(ctx, ledger.CreateOrderInput{
		ExternalID: req.ExternalID,
		UserID:     req.UserID,
		Lines:      toCreateLines(lines),
		Shipping:   req.Shipping,
		Payment:    req.Payment,
	})
	if err != nil {
		if relErr := c.reserver.Release(ctx, res.ID); relErr != nil {
			log.Printf("checkout %s: release reservation %s: %v", req.ExternalID, res.ID, relErr)
		}
		return nil, c.abort(req.ExternalID, st, fmt.Errorf("%w: %v", ErrCreationFailed, err))
	}

	// Confirmed: the reservation is consumed, the decrement is permanent.
	if err := c.reserver.Commit(ctx, res.ID); err != nil {
		log.Printf("checkout %s: commit reservation %s: %v", req.ExternalID, res.ID, err)
	}
	return order, nil
}

func (c *Coordinator) abort(ref string, from State, err error) error {
	log.Printf("checkout %s aborted in %s: %v", ref, from, err)
	return err
}

// normalize merges duplicate (product id, variant) lines by summing their
// quantities and rejects empty carts and non-positive quantities.
func normalize(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	type key struct{ id, variant string }
	index := make(map[key]int)
	out := make([]CartLine, 0, len(lines))
	for _, ln := range lines {
		if ln.Qty <= 0 {
			return nil, fmt.Errorf("%w: product %s has qty %d", ErrInvalidQuantity, ln.ProductID, ln.Qty)
		}
		k := key{ln.ProductID, ln.Variant}
		if i, ok := index[k]; ok {
			out[i].Qty += ln.Qty
			continue
		}
		index[k] = len(out)
		out = append(out, ln)
	}
	return out, nil
}

// toInventoryLines collapses variants: stock is held per product, variants
// of the same product draw from the same count.
func toInventoryLines(lines []CartLine) []inventory.Line {
	byProduct := make(map[string]int)
	order := make([]string, 0, len(lines))
	for _, ln := range lines {
		if _, ok := byProduct[ln.ProductID]; !ok {
			order = append(order, ln.ProductID)
		}
		byProduct[ln.ProductID] += ln.Qty
	}
	out := make([]inventory.Line, 0, len(order))
	for _, id := range order {
		out = append(out, inventory.Line{ProductID: id, Qty: byProduct[id]})
	}
	return out
}

func toCreateLines(lines []CartLine) []ledger.CreateLine {
	out := make([]ledger.CreateLine, 0, len(lines))
	for _, ln := range lines {
		out = append(out, ledger.CreateLine{ProductID: ln.ProductID, Variant: ln.Variant, Qty: ln.Qty})
	}
	return out
}
