package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopease/ledger/internal/catalog"
	"github.com/shopease/ledger/internal/inventory"
	"github.com/shopease/ledger/internal/ledger"
)

// Postgres stores records as rows with JSONB for the nested snapshots.
// Per-record writes are upserts; the domain layer already serializes
// conflicting mutations, so no row locking is needed here.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	var p catalog.Product
	var reviews, colors, features []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, sku, name, description, category, price_cents, stock, rating,
		       reviews, colors, features, warranty, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.PriceCents, &p.Stock, &p.Rating,
			&reviews, &colors, &features, &p.Warranty, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalProductLists(reviews, colors, features, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) PutProduct(ctx context.Context, p *catalog.Product) error {
	reviews, err := json.Marshal(orEmpty(p.Reviews))
	if err != nil {
		return err
	}
	colors, err := json.Marshal(orEmptyStr(p.Colors))
	if err != nil {
		return err
	}
	features, err := json.Marshal(orEmptyStr(p.Features))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO products (id, sku, name, description, category, price_cents, stock, rating,
		                      reviews, colors, features, warranty, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			sku=EXCLUDED.sku, name=EXCLUDED.name, description=EXCLUDED.description,
			category=EXCLUDED.category, price_cents=EXCLUDED.price_cents, stock=EXCLUDED.stock,
			rating=EXCLUDED.rating, reviews=EXCLUDED.reviews, colors=EXCLUDED.colors,
			features=EXCLUDED.features, warranty=EXCLUDED.warranty, updated_at=EXCLUDED.updated_at`,
		p.ID, p.SKU, p.Name, p.Description, p.Category, p.PriceCents, p.Stock, p.Rating,
		reviews, colors, features, p.Warranty, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Postgres) DeleteProduct(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListProducts(ctx context.Context) ([]*catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sku, name, description, category, price_cents, stock, rating,
		       reviews, colors, features, warranty, created_at, updated_at
		FROM products ORDER BY sku, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*catalog.Product{}
	for rows.Next() {
		var p catalog.Product
		var reviews, colors, features []byte
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.PriceCents, &p.Stock, &p.Rating,
			&reviews, &colors, &features, &p.Warranty, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalProductLists(reviews, colors, features, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

const orderColumns = `id, external_id, user_id, items, shipping_info, payment_info,
	subtotal_cents, shipping_cents, tax_cents, total_cents, status, created_at, updated_at`

func (s *Postgres) scanOrder(row pgx.Row) (*ledger.Order, error) {
	var o ledger.Order
	var extID *string
	var items, shipping, payment []byte
	err := row.Scan(&o.ID, &extID, &o.UserID, &items, &shipping, &payment,
		&o.SubtotalCents, &o.ShippingCents, &o.TaxCents, &o.TotalCents, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if extID != nil {
		o.ExternalID = *extID
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payment, &o.Payment); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Postgres) GetOrder(ctx context.Context, id string) (*ledger.Order, error) {
	return s.scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (s *Postgres) GetOrderByExternalID(ctx context.Context, externalID string) (*ledger.Order, error) {
	return s.scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID))
}

func (s *Postgres) PutOrder(ctx context.Context, o *ledger.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return err
	}
	payment, err := json.Marshal(o.Payment)
	if err != nil {
		return err
	}
	var extID *string
	if o.ExternalID != "" {
		extID = &o.ExternalID
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (id, external_id, user_id, items, shipping_info, payment_info,
		                    subtotal_cents, shipping_cents, tax_cents, total_cents, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, updated_at=EXCLUDED.updated_at`,
		o.ID, extID, o.UserID, items, shipping, payment,
		o.SubtotalCents, o.ShippingCents, o.TaxCents, o.TotalCents, o.Status, o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *Postgres) ListOrders(ctx context.Context) ([]*ledger.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*ledger.Order{}
	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Postgres) GetReservation(ctx context.Context, id string) (*inventory.Reservation, error) {
	var r inventory.Reservation
	var lines []byte
	err := s.pool.QueryRow(ctx, `SELECT id, ref, lines, state, created_at FROM reservations WHERE id=$1`, id).
		Scan(&r.ID, &r.Ref, &lines, &r.State, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, inventory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &r.Lines); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Postgres) PutReservation(ctx context.Context, r *inventory.Reservation) error {
	lines, err := json.Marshal(r.Lines)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reservations (id, ref, lines, state, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET state=EXCLUDED.state`,
		r.ID, r.Ref, lines, r.State, r.CreatedAt)
	return err
}

func (s *Postgres) ListReservations(ctx context.Context) ([]*inventory.Reservation, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, ref, lines, state, created_at FROM reservations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*inventory.Reservation{}
	for rows.Next() {
		var r inventory.Reservation
		var lines []byte
		if err := rows.Scan(&r.ID, &r.Ref, &lines, &r.State, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &r.Lines); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func unmarshalProductLists(reviews, colors, features []byte, p *catalog.Product) error {
	if err := json.Unmarshal(reviews, &p.Reviews); err != nil {
		return err
	}
	if err := json.Unmarshal(colors, &p.Colors); err != nil {
		return err
	}
	return json.Unmarshal(features, &p.Features)
}

func orEmpty(rs []catalog.Review) []catalog.Review {
	if rs == nil {
		return []catalog.Review{}
	}
	return rs
}

func orEmptyStr(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
