package store

import (
	"context"
	"fmt"
	"time"
)

type customerRepo struct{ tx *sqlTx }

const customerSelectCols = `id, name, mobile, address, notes, order_history, created_at, updated_at`

func scanCustomer(row scanner) (*Customer, error) {
	var c Customer
	var history string
	var createdAt, updatedAt any
	if err := row.Scan(&c.ID, &c.Name, &c.Mobile, &c.Address, &c.Notes, &history, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.OrderHistory = decodeIDs(history)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (r *customerRepo) ListAll(ctx context.Context) ([]*Customer, error) {
	return listRows(ctx, r.tx, "customers", `SELECT `+customerSelectCols+` FROM customers ORDER BY name, id`, scanCustomer)
}

func (r *customerRepo) Get(ctx context.Context, id string) (*Customer, error) {
	return getRow(ctx, r.tx, "customer", `SELECT `+customerSelectCols+` FROM customers WHERE id=?`, id, scanCustomer)
}

func (r *customerRepo) Upsert(ctx context.Context, c *Customer) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	d := r.tx.db.dialect
	_, err := r.tx.q.ExecContext(ctx, r.tx.db.Q(`INSERT INTO customers (id, name, mobile, address, notes, order_history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, mobile=excluded.mobile, address=excluded.address,
			notes=excluded.notes, order_history=excluded.order_history, updated_at=excluded.updated_at`),
		c.ID, c.Name, c.Mobile, c.Address, c.Notes, encodeIDs(c.OrderHistory), d.Time(c.CreatedAt), d.Time(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", c.ID, err)
	}
	return nil
}

func (r *customerRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.tx, "customers", "customer", id)
}
