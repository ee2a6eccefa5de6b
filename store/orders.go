package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cowaramupagencies/gas/bottles"
)

type orderRepo struct{ tx *sqlTx }

const orderSelectCols = `id, customer_id, bottles, bottle_type, quantity, preferred_day, delivery_date, invoice_number, notes, status, run_id, delivered, delivered_at, delivered_run_id, created_at, updated_at`

func scanOrder(row scanner) (*Order, error) {
	var o Order
	var bottlesJSON sql.NullString
	var legacyType string
	var legacyQty int
	var status string
	var deliveredAt, createdAt, updatedAt any

	err := row.Scan(&o.ID, &o.CustomerID, &bottlesJSON, &legacyType, &legacyQty,
		&o.PreferredDay, &o.DeliveryDate, &o.InvoiceNumber, &o.Notes, &status, &o.RunID,
		&o.Delivered, &deliveredAt, &o.DeliveredRunID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.SetBottles(decodeBottles(bottlesJSON, legacyType, legacyQty))
	o.Status = OrderStatus(status)
	if !o.Status.Valid() {
		o.Status = legacyStatus(&o)
	}
	if o.PreferredDay == "" {
		o.PreferredDay = "Any"
	}
	o.DeliveredAt = parseTimePtr(deliveredAt)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

// decodeBottles reads the per-type map, falling back to the single
// bottle_type + quantity pair written by older versions.
func decodeBottles(raw sql.NullString, legacyType string, legacyQty int) bottles.Quantities {
	if raw.Valid {
		s := strings.TrimSpace(raw.String)
		if s != "" && s != "null" {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err == nil {
				return bottles.FromAny(m)
			}
		}
	}
	return bottles.FromLegacy(legacyType, legacyQty)
}

// legacyStatus derives a status for rows written before statuses were stored.
func legacyStatus(o *Order) OrderStatus {
	switch {
	case o.Delivered && o.RunID != "":
		return OrderDelivered
	case o.RunID != "":
		return OrderAssigned
	default:
		return OrderUnassigned
	}
}

func (r *orderRepo) ListAll(ctx context.Context) ([]*Order, error) {
	return listRows(ctx, r.tx, "orders", `SELECT `+orderSelectCols+` FROM orders ORDER BY created_at, id`, scanOrder)
}

func (r *orderRepo) Get(ctx context.Context, id string) (*Order, error) {
	return getRow(ctx, r.tx, "order", `SELECT `+orderSelectCols+` FROM orders WHERE id=?`, id, scanOrder)
}

func (r *orderRepo) Upsert(ctx context.Context, o *Order) error {
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	o.SetBottles(o.Bottles)
	data, err := json.Marshal(o.Bottles)
	if err != nil {
		return fmt.Errorf("marshal bottles: %w", err)
	}
	d := r.tx.db.dialect
	_, err = r.tx.q.ExecContext(ctx, r.tx.db.Q(`INSERT INTO orders (id, customer_id, bottles, bottle_type, quantity, total_bottle_count,
			preferred_day, delivery_date, invoice_number, notes, status, run_id, delivered, delivered_at, delivered_run_id,
			created_at, updated_at)
		VALUES (?, ?, ?, '', 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET customer_id=excluded.customer_id, bottles=excluded.bottles,
			bottle_type='', quantity=0, total_bottle_count=excluded.total_bottle_count,
			preferred_day=excluded.preferred_day, delivery_date=excluded.delivery_date,
			invoice_number=excluded.invoice_number, notes=excluded.notes, status=excluded.status,
			run_id=excluded.run_id, delivered=excluded.delivered, delivered_at=excluded.delivered_at,
			delivered_run_id=excluded.delivered_run_id, updated_at=excluded.updated_at`),
		o.ID, o.CustomerID, string(data), o.TotalBottleCount,
		o.PreferredDay, o.DeliveryDate, o.InvoiceNumber, o.Notes, string(o.Status), o.RunID,
		o.Delivered, timeArg(d, o.DeliveredAt), o.DeliveredRunID,
		d.Time(o.CreatedAt), d.Time(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	return nil
}

func (r *orderRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.tx, "orders", "order", id)
}
