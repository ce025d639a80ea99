package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/syncx"
)

type State string

const (
	StatePending   State = "PENDING"
	StateCommitted State = "COMMITTED"
	StateReleased  State = "RELEASED"
)

var (
	ErrNotFound = errors.New("reservation not found")
	// ErrReleased is returned when committing a reservation that was already
	// rolled back (e.g. by the reconciliation sweep).
	ErrReleased = errors.New("reservation already released")
)

type Line struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Reservation ties a checkout attempt (Ref) to a set of stock holds. It is
// Pending during the checkout window and ends up either Committed (decrement
// becomes permanent) or Released (stock returned).
type Reservation struct {
	ID        string    `json:"id"`
	Ref       string    `json:"ref"` // checkout external id
	Lines     []Line    `json:"lines"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Reservation) Clone() *Reservation {
	cp := *r
	cp.Lines = append([]Line(nil), r.Lines...)
	return &cp
}

type ReservationStore interface {
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	PutReservation(ctx context.Context, r *Reservation) error
	ListReservations(ctx context.Context) ([]*Reservation, error)
}

// Reserver implements all-or-nothing stock holds over the catalog: either
// every line of a cart is decremented or none is.
type Reserver struct {
	catalog  *catalog.Catalog
	store    ReservationStore
	locks    *syncx.KeyedMutex // serializes commit/release per reservation
	lockWait time.Duration
}

func NewReserver(c *catalog.Catalog, store ReservationStore, lockWait time.Duration) *Reserver {
	return &Reserver{catalog: c, store: store, locks: syncx.NewKeyedMutex(), lockWait: lockWait}
}

// Reserve decrements stock for every line, walking lines in ascending
// product-id order for determinism. On the first failure all prior
// decrements are rolled back before the error is returned, so a cart with
// five lines never holds four items because the fifth is out of stock.
func (rs *Reserver) Reserve(ctx context.Context, ref string, lines []Line) (*Reservation, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("no lines to reserve")
	}
	sorted := append([]Line(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for i, l := range sorted {
		if err := rs.catalog.DecrementStock(ctx, l.ProductID, l.Qty); err != nil {
			rs.rollback(ctx, sorted[:i])
			return nil, err
		}
	}

	res := &Reservation{
		ID:        uuid.NewString(),
		Ref:       ref,
		Lines:     sorted,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := rs.store.PutReservation(ctx, res); err != nil {
		rs.rollback(ctx, sorted)
		return nil, err
	}
	return res, nil
}

func (rs *Reserver) rollback(ctx context.Context, held []Line) {
	// Restock cannot fail on stock grounds; a missing product here means it
	// was deleted mid-flight and there is nothing left to return the units to.
	for _, l := range held {
		_ = rs.catalog.Restock(ctx, l.ProductID, l.Qty)
	}
}

// Commit makes the decrement permanent. Committing twice is a no-op.
func (rs *Reserver) Commit(ctx context.Context, id string) error {
	if err := rs.locks.Lock(ctx, id, rs.lockWait); err != nil {
		return err
	}
	defer rs.locks.Unlock(id)

	res, err := rs.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	switch res.State {
	case StateCommitted:
		return nil
	case StateReleased:
		return ErrReleased
	}
	res.State = StateCommitted
	return rs.store.PutReservation(ctx, res)
}

// Release restocks every line of a pending reservation. Idempotent: releasing
// an already released or committed reservation is a no-op.
func (rs *Reserver) Release(ctx context.Context, id string) error {
	if err := rs.locks.Lock(ctx, id, rs.lockWait); err != nil {
		return err
	}
	defer rs.locks.Unlock(id)

	res, err := rs.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if res.State != StatePending {
		return nil
	}
	rs.rollback(ctx, res.Lines)
	res.State = StateReleased
	return rs.store.PutReservation(ctx, res)
}

// SweepExpired releases pending reservations older than ttl. Checkout
// attempts abandoned mid-flight (client gone, process crash between reserve
// and create) would otherwise hold stock forever.
func (rs *Reserver) SweepExpired(ctx context.Context, ttl time.Duration) (int, error) {
	all, err := rs.store.ListReservations(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-ttl)
	released := 0
	for _, res := range all {
		if res.State != StatePending || res.CreatedAt.After(cutoff) {
			continue
		}
		if err := rs.Release(ctx, res.ID); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}
