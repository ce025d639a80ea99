// Package storage provides the persistence backends behind the catalog,
// ledger and inventory store interfaces: an in-memory map (tests, dev), an
// embedded bolt file and postgres. Services persist on every mutation, so a
// backend only needs plain record CRUD; all serialization of concurrent
// mutation lives in the domain layer.
package storage

import (
	"context"
	"sync"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/inventory"
	"github.com/shopease/ledger/internal/ledger"
)

// Memory keeps everything in maps. Records are deep-copied on the way in and
// out so callers never alias store state.
type Memory struct {
	mu           sync.RWMutex
	products     map[string]*catalog.Product
	orders       map[string]*ledger.Order
	ordersByExt  map[string]string // external id -> order id
	reservations map[string]*inventory.Reservation
}

func NewMemory() *Memory {
	return &Memory{
		products:     make(map[string]*catalog.Product),
		orders:       make(map[string]*ledger.Order),
		ordersByExt:  make(map[string]string),
		reservations: make(map[string]*inventory.Reservation),
	}
}

func (m *Memory) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) PutProduct(_ context.Context, p *catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p.Clone()
	return nil
}

func (m *Memory) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *Memory) ListProducts(_ context.Context) ([]*catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*catalog.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) GetOrderByExternalID(_ context.Context, externalID string) (*ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ordersByExt[externalID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return m.orders[id].Clone(), nil
}

func (m *Memory) PutOrder(_ context.Context, o *ledger.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
	if o.ExternalID != "" {
		m.ordersByExt[o.ExternalID] = o.ID
	}
	return nil
}

func (m *Memory) ListOrders(_ context.Context) ([]*ledger.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ledger.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (m *Memory) GetReservation(_ context.Context, id string) (*inventory.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) PutReservation(_ context.Context, r *inventory.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r.Clone()
	return nil
}

func (m *Memory) ListReservations(_ context.Context) ([]*inventory.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*inventory.Reservation, 0, len(m.reservations))
	for _, r := range m.reservations {
		out = append(out, r.Clone())
	}
	return out, nil
}
