package dispatch

import (
	"context"
	"errors"

	"github.com/cowaramupagencies/gas/store"
)

// CreateRun opens the next run for date. Numbers continue from the date's
// run sequence, so a removed run's number is never handed out again.
func (d *Dispatcher) CreateRun(ctx context.Context, date string) (*store.Run, error) {
	t, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	date = t.Format(dateLayout)
	var out *store.Run
	err = d.update(ctx, "create run", func(tx store.Tx, ev *events) error {
		runs, err := runsForDate(ctx, tx, date)
		if err != nil {
			return err
		}
		seq, err := tx.RunSequences().Get(ctx, date)
		switch {
		case errors.Is(err, store.ErrNotFound):
			seq = &store.RunSequence{DeliveryDate: date}
		case err != nil:
			return err
		}
		next := seq.Last + 1
		for _, r := range runs {
			if r.RunNumber >= next {
				next = r.RunNumber + 1
			}
		}
		seq.Last = next
		if err := tx.RunSequences().Upsert(ctx, seq); err != nil {
			return err
		}
		run := &store.Run{
			ID:           d.newID(),
			DeliveryDate: date,
			RunNumber:    next,
			Status:       store.RunPending,
			CreatedAt:    d.now(),
		}
		if err := tx.Runs().Upsert(ctx, run); err != nil {
			return err
		}
		out = run.Clone()
		r := run.Clone()
		ev.add(func() { d.emitter.EmitRunCreated(r) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveRun deletes a run and leaves every order on it unassigned. Its
// manifests are kept as history; an active one is superseded.
func (d *Dispatcher) RemoveRun(ctx context.Context, runID string) error {
	return d.update(ctx, "remove run", func(tx store.Tx, ev *events) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return &RunLockedError{RunID: run.ID, Op: "remove run"}
		}

		// Orders pointing at the run without being listed are released too.
		orders, err := tx.Orders().ListAll(ctx)
		if err != nil {
			return err
		}
		var detached []string
		for _, o := range orders {
			if o.RunID != run.ID {
				continue
			}
			o.RunID = ""
			if err := o.SetStatus(store.OrderUnassigned); err != nil {
				return err
			}
			o.ClearDelivery()
			if err := d.saveOrder(ctx, tx, o); err != nil {
				return err
			}
			detached = append(detached, o.ID)
		}

		active, err := activeManifest(ctx, tx, run.ID)
		if err != nil {
			return err
		}
		if active != nil {
			now := d.now()
			if err := active.SetStatus(store.ManifestSuperseded); err != nil {
				return err
			}
			active.SupersededAt = &now
			if err := tx.Manifests().Upsert(ctx, active); err != nil {
				return err
			}
		}

		if err := tx.Runs().Delete(ctx, run.ID); err != nil {
			return notFound("run", run.ID, err)
		}
		r := run.Clone()
		ev.add(func() { d.emitter.EmitRunRemoved(r, detached) })
		return nil
	})
}

// GetRun returns a run with its orders, capacity and active manifest.
func (d *Dispatcher) GetRun(ctx context.Context, runID string) (*RunDetail, error) {
	var out *RunDetail
	err := d.view(ctx, func(tx store.Tx) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		detail, err := d.runDetail(ctx, tx, run)
		if err != nil {
			return err
		}
		out = detail
		return nil
	})
	return out, err
}

func (d *Dispatcher) runDetail(ctx context.Context, tx store.Tx, run *store.Run) (*RunDetail, error) {
	orders, err := runOrders(ctx, tx, run)
	if err != nil {
		return nil, err
	}
	detail := &RunDetail{Run: run, Orders: make([]OrderView, 0, len(orders))}
	for _, o := range orders {
		v, err := orderView(ctx, tx, o)
		if err != nil {
			return nil, err
		}
		detail.Orders = append(detail.Orders, v)
	}
	detail.Capacity, err = d.capacityOf(ctx, tx, run, "", 1)
	if err != nil {
		return nil, err
	}
	detail.Manifest, err = activeManifest(ctx, tx, run.ID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}
