package store

import (
	"context"
	"fmt"
)

type runSequenceRepo struct{ tx *sqlTx }

const runSequenceSelectCols = `delivery_date, last_number`

func scanRunSequence(row scanner) (*RunSequence, error) {
	var s RunSequence
	if err := row.Scan(&s.DeliveryDate, &s.Last); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *runSequenceRepo) ListAll(ctx context.Context) ([]*RunSequence, error) {
	return listRows(ctx, r.tx, "run sequences", `SELECT `+runSequenceSelectCols+` FROM run_sequences ORDER BY delivery_date`, scanRunSequence)
}

func (r *runSequenceRepo) Get(ctx context.Context, date string) (*RunSequence, error) {
	return getRow(ctx, r.tx, "run sequence", `SELECT `+runSequenceSelectCols+` FROM run_sequences WHERE delivery_date=?`, date, scanRunSequence)
}

func (r *runSequenceRepo) Upsert(ctx context.Context, s *RunSequence) error {
	_, err := r.tx.q.ExecContext(ctx, r.tx.db.Q(`INSERT INTO run_sequences (delivery_date, last_number) VALUES (?, ?)
		ON CONFLICT(delivery_date) DO UPDATE SET last_number=excluded.last_number`),
		s.DeliveryDate, s.Last)
	if err != nil {
		return fmt.Errorf("upsert run sequence %s: %w", s.DeliveryDate, err)
	}
	return nil
}

func (r *runSequenceRepo) Delete(ctx context.Context, date string) error {
	res, err := r.tx.q.ExecContext(ctx, r.tx.db.Q(`DELETE FROM run_sequences WHERE delivery_date=?`), date)
	if err != nil {
		return fmt.Errorf("delete run sequence %s: %w", date, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run sequence %s: %w", date, ErrNotFound)
	}
	return nil
}
