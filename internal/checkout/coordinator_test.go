package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/checkout"
	"github.com/shopease/ledger/internal/inventory"
	"github.com/shopease/ledger/internal/ledger"
	"github.com/shopease/ledger/internal/storage"
	"github.com/shopease/ledger/internal/syncx"
)

const lockWait = 200 * time.Millisecond

var pricing = ledger.Pricing{
	TaxBasisPoints:    1800,
	ShippingFeeCents:  50_00,
	FreeShippingCents: 1000_00,
}

type fixture struct {
	catalog *catalog.Catalog
	coord   *checkout.Coordinator
	ledger  *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemory()
	c := catalog.New(store, lockWait)
	reserver := inventory.NewReserver(c, store, lockWait)
	l := ledger.New(store, c, pricing, lockWait)
	return &fixture{catalog: c, coord: checkout.New(reserver, l, lockWait), ledger: l}
}

func (f *fixture) addProduct(t *testing.T, name string, priceCents, stock int) string {
	t.Helper()
	p, err := f.catalog.Add(context.Background(), catalog.ProductInput{
		Name: name, PriceCents: priceCents, Stock: stock,
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Checkout(context.Background(), checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
	})
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestCheckoutRejectsNonPositiveQty(t *testing.T) {
	f := newFixture(t)
	p1 := f.addProduct(t, "P1", 10_00, 5)
	_, err := f.coord.Checkout(context.Background(), checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
		Lines: []checkout.CartLine{{ProductID: p1, Qty: 0}},
	})
	assert.ErrorIs(t, err, checkout.ErrInvalidQuantity)
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", 10_00, 2)

	o, err := f.coord.Checkout(ctx, checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
		Lines: []checkout.CartLine{{ProductID: p1, Qty: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, p1))
	assert.Equal(t, 20_00, o.SubtotalCents)
	assert.Equal(t, 73_60, o.TotalCents) // +18% tax +50.00 shipping
	assert.Equal(t, ledger.StatusProcessing, o.Status)
}

func TestCheckoutSameCartAgainFailsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", 10_00, 2)

	_, err := f.coord.Checkout(ctx, checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
		Lines: []checkout.CartLine{{ProductID: p1, Qty: 2}},
	})
	require.NoError(t, err)

	_, err = f.coord.Checkout(ctx, checkout.Request{
		ExternalID: "chk-2", UserID: "u2",
		Lines: []checkout.CartLine{{ProductID: p1, Qty: 2}},
	})
	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p1, stockErr.ProductID)
	assert.Equal(t, 0, f.stock(t, p1))

	orders, err := f.ledger.ListAll(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1, "no order created for the failed attempt")
}

func TestCheckoutIdempotentOnExternalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", 10_00, 2)

	req := checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
		Lines: []checkout.CartLine{{ProductID: p1, Qty: 2}},
	}
	first, err := f.coord.Checkout(ctx, req)
	require.NoError(t, err)

	// retry with the same external id: same order back, stock untouched
	second, err := f.coord.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0, f.stock(t, p1))
}

func TestCheckoutMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", 10_00, 5)

	o, err := f.coord.Checkout(ctx, checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
		Lines: []checkout.CartLine{
			{ProductID: p1, Variant: "Black", Qty: 1},
			{ProductID: p1, Variant: "Black", Qty: 2},
			{ProductID: p1, Variant: "White", Qty: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 2, "duplicate (product, variant) lines merge")
	assert.Equal(t, 3, o.Items[0].Qty)
	assert.Equal(t, 1, o.Items[1].Qty)
	assert.Equal(t, 1, f.stock(t, p1))
}

type failingOrderStore struct {
	*storage.Memory
}

func (s *failingOrderStore) PutOrder(ctx context.Context, o *ledger.Order) error {
	return errors.New("disk full")
}

func TestCheckoutRollsBackReservationOnCreationFailure(t *testing.T) {
	store := storage.NewMemory()
	c := catalog.New(store, lockWait)
	reserver := inventory.NewReserver(c, store, lockWait)
	l := ledger.New(&failingOrderStore{store}, c, pricing, lockWait)
	coord := checkout.New(reserver, l, lockWait)

	ctx := context.Background()
	p, err := c.Add(ctx, catalog.ProductInput{Name: "P1", PriceCents: 10_00, Stock: 2})
	require.NoError(t, err)

	_, err = coord.Checkout(ctx, checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
		Lines: []checkout.CartLine{{ProductID: p.ID, Qty: 2}},
	})
	require.ErrorIs(t, err, checkout.ErrCreationFailed)

	got, err := c.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock, "reservation rolled back, no stock lost")
}

// Concurrent submissions of the same external id must collapse to a single
// order holding a single unit; a lost race must not leave stock decremented
// twice.
func TestConcurrentDuplicateCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", 10_00, 10)

	const n = 4
	start := make(chan struct{})
	var wg sync.WaitGroup
	got := make([]*ledger.Order, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i], errs[i] = f.coord.Checkout(ctx, checkout.Request{
				ExternalID: "chk-dup", UserID: "u1",
				Lines: []checkout.CartLine{{ProductID: p1, Qty: 1}},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var winner string
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], syncx.ErrBusy)
			continue
		}
		if winner == "" {
			winner = got[i].ID
		}
		assert.Equal(t, winner, got[i].ID, "every successful submission sees the same order")
	}
	require.NotEmpty(t, winner)

	all, err := f.ledger.ListAll(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 9, f.stock(t, p1), "exactly one unit held")
}

func TestCancelledOrderRestocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", 10_00, 5)

	o, err := f.coord.Checkout(ctx, checkout.Request{
		ExternalID: "chk-1", UserID: "u1",
		Lines: []checkout.CartLine{{ProductID: p1, Qty: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, f.stock(t, p1))

	_, err = f.ledger.TransitionStatus(ctx, o.ID, ledger.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, p1), "cancelled units return to stock")

	// terminal state, no way to restock twice
	_, err = f.ledger.TransitionStatus(ctx, o.ID, ledger.StatusCancelled)
	require.Error(t, err)
	assert.Equal(t, 5, f.stock(t, p1))
}

// Two users race for the last unit; exactly one order is created.
func TestConcurrentCheckoutLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", 10_00, 1)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.coord.Checkout(ctx, checkout.Request{
				ExternalID: "chk-" + string(rune('a'+i)), UserID: "u1",
				Lines: []checkout.CartLine{{ProductID: p1, Qty: 1}},
			})
		}(i)
	}
	wg.Wait()

	okCount := 0
	var stockErr *catalog.InsufficientStockError
	for _, err := range results {
		if err == nil {
			okCount++
		} else {
			require.ErrorAs(t, err, &stockErr)
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 0, f.stock(t, p1))

	orders, err := f.ledger.ListAll(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
