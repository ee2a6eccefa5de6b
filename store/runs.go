package store

import (
	"context"
	"fmt"
	"time"
)

type runRepo struct{ tx *sqlTx }

const runSelectCols = `id, delivery_date, run_number, order_ids, manifest_id, status, completed_at, created_at`

func scanRun(row scanner) (*Run, error) {
	var r Run
	var orderIDs, status string
	var completedAt, createdAt any
	if err := row.Scan(&r.ID, &r.DeliveryDate, &r.RunNumber, &orderIDs, &r.ManifestID, &status, &completedAt, &createdAt); err != nil {
		return nil, err
	}
	r.OrderIDs = decodeIDs(orderIDs)
	r.Status = RunStatus(status)
	if !r.Status.Valid() {
		r.Status = RunPending
	}
	r.CompletedAt = parseTimePtr(completedAt)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func (r *runRepo) ListAll(ctx context.Context) ([]*Run, error) {
	return listRows(ctx, r.tx, "runs", `SELECT `+runSelectCols+` FROM runs ORDER BY delivery_date, run_number`, scanRun)
}

func (r *runRepo) Get(ctx context.Context, id string) (*Run, error) {
	return getRow(ctx, r.tx, "run", `SELECT `+runSelectCols+` FROM runs WHERE id=?`, id, scanRun)
}

func (r *runRepo) Upsert(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	d := r.tx.db.dialect
	_, err := r.tx.q.ExecContext(ctx, r.tx.db.Q(`INSERT INTO runs (id, delivery_date, run_number, order_ids, manifest_id, status, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET delivery_date=excluded.delivery_date, run_number=excluded.run_number,
			order_ids=excluded.order_ids, manifest_id=excluded.manifest_id, status=excluded.status,
			completed_at=excluded.completed_at`),
		run.ID, run.DeliveryDate, run.RunNumber, encodeIDs(run.OrderIDs), run.ManifestID, string(run.Status),
		timeArg(d, run.CompletedAt), d.Time(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}
	return nil
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.tx, "runs", "run", id)
}
