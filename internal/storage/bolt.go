package storage

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/inventory"
	"github.com/shopease/ledger/internal/ledger"
)

var (
	bucketProducts     = []byte("products")
	bucketOrders       = []byte("orders")
	bucketOrdersByExt  = []byte("orders_by_external_id")
	bucketReservations = []byte("reservations")
)

// Bolt is the embedded durable backend: one file, JSON values, one bucket
// per record kind plus an external-id index for orders.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProducts, bucketOrders, bucketOrdersByExt, bucketReservations} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) get(bucket []byte, key string, out any, notFound error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return notFound
		}
		return json.Unmarshal(v, out)
	})
}

func (b *Bolt) put(bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (b *Bolt) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	var p catalog.Product
	if err := b.get(bucketProducts, id, &p, catalog.ErrNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Bolt) PutProduct(_ context.Context, p *catalog.Product) error {
	return b.put(bucketProducts, p.ID, p)
}

func (b *Bolt) DeleteProduct(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketProducts)
		if bk.Get([]byte(id)) == nil {
			return catalog.ErrNotFound
		}
		return bk.Delete([]byte(id))
	})
}

func (b *Bolt) ListProducts(_ context.Context) ([]*catalog.Product, error) {
	out := []*catalog.Product{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProducts).ForEach(func(_, v []byte) error {
			var p catalog.Product
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) GetOrder(_ context.Context, id string) (*ledger.Order, error) {
	var o ledger.Order
	if err := b.get(bucketOrders, id, &o, ledger.ErrNotFound); err != nil {
		return nil, err
	}
	return &o, nil
}

func (b *Bolt) GetOrderByExternalID(ctx context.Context, externalID string) (*ledger.Order, error) {
	var id string
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOrdersByExt).Get([]byte(externalID))
		if v == nil {
			return ledger.ErrNotFound
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.GetOrder(ctx, id)
}

func (b *Bolt) PutOrder(_ context.Context, o *ledger.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketOrders).Put([]byte(o.ID), data); err != nil {
			return err
		}
		if o.ExternalID != "" {
			return tx.Bucket(bucketOrdersByExt).Put([]byte(o.ExternalID), []byte(o.ID))
		}
		return nil
	})
}

func (b *Bolt) ListOrders(_ context.Context) ([]*ledger.Order, error) {
	out := []*ledger.Order{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrders).ForEach(func(_, v []byte) error {
			var o ledger.Order
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			out = append(out, &o)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) GetReservation(_ context.Context, id string) (*inventory.Reservation, error) {
	var r inventory.Reservation
	if err := b.get(bucketReservations, id, &r, inventory.ErrNotFound); err != nil {
		return nil, err
	}
	return &r, nil
}

func (b *Bolt) PutReservation(_ context.Context, r *inventory.Reservation) error {
	return b.put(bucketReservations, r.ID, r)
}

func (b *Bolt) ListReservations(_ context.Context) ([]*inventory.Reservation, error) {
	out := []*inventory.Reservation{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReservations).ForEach(func(_, v []byte) error {
			var r inventory.Reservation
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
