package storage

import (
	"context"
	"fmt"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/inventory"
	"github.com/shopease/ledger/internal/ledger"
	"github.com/shopease/ledger/internal/postgres"
)

// Store bundles the per-component store interfaces every backend implements.
type Store interface {
	catalog.ProductStore
	ledger.OrderStore
	inventory.ReservationStore
}

// Open builds the backend selected by driver. The returned func closes
// whatever was opened; for memory it is a no-op.
func Open(ctx context.Context, driver, boltPath, postgresDSN string) (Store, func(), error) {
	switch driver {
	case "memory":
		return NewMemory(), func() {}, nil
	case "bolt":
		b, err := OpenBolt(boltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt %s: %w", boltPath, err)
		}
		return b, func() { _ = b.Close() }, nil
	case "postgres":
		pool, err := postgres.Connect(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return NewPostgres(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
