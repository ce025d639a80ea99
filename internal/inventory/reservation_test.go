package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/inventory"
	"github.com/shopease/ledger/internal/storage"
)

const lockWait = 200 * time.Millisecond

type fixture struct {
	catalog  *catalog.Catalog
	reserver *inventory.Reserver
	store    *storage.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemory()
	c := catalog.New(store, lockWait)
	return &fixture{
		catalog:  c,
		reserver: inventory.NewReserver(c, store, lockWait),
		store:    store,
	}
}

func (f *fixture) addProduct(t *testing.T, name string, stock int) string {
	t.Helper()
	p, err := f.catalog.Add(context.Background(), catalog.ProductInput{
		Name: name, PriceCents: 10_00, Stock: stock,
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

func TestReserveHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "A", 5)
	p2 := f.addProduct(t, "B", 3)

	res, err := f.reserver.Reserve(ctx, "chk-1", []inventory.Line{
		{ProductID: p1, Qty: 2},
		{ProductID: p2, Qty: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, inventory.StatePending, res.State)
	assert.Equal(t, 3, f.stock(t, p1))
	assert.Equal(t, 0, f.stock(t, p2))
}

func TestReserveAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "A", 5)
	p2 := f.addProduct(t, "B", 1)

	_, err := f.reserver.Reserve(ctx, "chk-1", []inventory.Line{
		{ProductID: p1, Qty: 2},
		{ProductID: p2, Qty: 2}, // only 1 available
	})
	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p2, stockErr.ProductID)

	// no partial decrement persists after the error
	assert.Equal(t, 5, f.stock(t, p1))
	assert.Equal(t, 1, f.stock(t, p2))
}

func TestReleaseRestocksAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "A", 5)

	res, err := f.reserver.Reserve(ctx, "chk-1", []inventory.Line{{ProductID: p1, Qty: 4}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.stock(t, p1))

	require.NoError(t, f.reserver.Release(ctx, res.ID))
	assert.Equal(t, 5, f.stock(t, p1))

	// releasing twice is a no-op
	require.NoError(t, f.reserver.Release(ctx, res.ID))
	assert.Equal(t, 5, f.stock(t, p1))
}

func TestCommitConsumesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "A", 5)

	res, err := f.reserver.Reserve(ctx, "chk-1", []inventory.Line{{ProductID: p1, Qty: 2}})
	require.NoError(t, err)
	require.NoError(t, f.reserver.Commit(ctx, res.ID))

	// a committed reservation cannot be released back
	require.NoError(t, f.reserver.Release(ctx, res.ID))
	assert.Equal(t, 3, f.stock(t, p1))

	// committing again is a no-op
	assert.NoError(t, f.reserver.Commit(ctx, res.ID))
}

func TestCommitAfterReleaseFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "A", 5)

	res, err := f.reserver.Reserve(ctx, "chk-1", []inventory.Line{{ProductID: p1, Qty: 2}})
	require.NoError(t, err)
	require.NoError(t, f.reserver.Release(ctx, res.ID))

	assert.ErrorIs(t, f.reserver.Commit(ctx, res.ID), inventory.ErrReleased)
}

// Two checkouts racing on the last unit: exactly one wins.
func TestConcurrentReserveLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "A", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.reserver.Reserve(ctx, "chk", []inventory.Line{{ProductID: p1, Qty: 1}})
		}(i)
	}
	wg.Wait()

	var stockErr *catalog.InsufficientStockError
	switch {
	case errs[0] == nil:
		require.ErrorAs(t, errs[1], &stockErr)
	case errs[1] == nil:
		require.ErrorAs(t, errs[0], &stockErr)
	default:
		t.Fatalf("both reservations failed: %v / %v", errs[0], errs[1])
	}
	assert.Equal(t, 0, f.stock(t, p1))
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "A", 5)

	stale, err := f.reserver.Reserve(ctx, "chk-old", []inventory.Line{{ProductID: p1, Qty: 2}})
	require.NoError(t, err)
	// age it past the TTL
	stale.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.store.PutReservation(ctx, stale))

	fresh, err := f.reserver.Reserve(ctx, "chk-new", []inventory.Line{{ProductID: p1, Qty: 1}})
	require.NoError(t, err)

	n, err := f.reserver.SweepExpired(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, f.stock(t, p1), "stale hold returned, fresh hold kept")

	got, err := f.store.GetReservation(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StateReleased, got.State)

	got, err = f.store.GetReservation(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatePending, got.State)
}
