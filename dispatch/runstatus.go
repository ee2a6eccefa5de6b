package dispatch

import (
	"context"
	"fmt"

	"github.com/cowaramupagencies/gas/store"
)

// nextStatus derives a run's status from its delivery counts. A completed
// run never changes and an empty run keeps whatever it had. Having every
// order delivered only makes the run eligible for completion.
func nextStatus(current store.RunStatus, delivered, total int) store.RunStatus {
	switch {
	case current.IsTerminal(), total == 0:
		return current
	case delivered == 0:
		return store.RunPending
	default:
		return store.RunInProgress
	}
}

// recompute saves run with the status its orders imply.
func (d *Dispatcher) recompute(ctx context.Context, tx store.Tx, ev *events, run *store.Run) error {
	orders, err := runOrders(ctx, tx, run)
	if err != nil {
		return fmt.Errorf("load orders for run %s: %w", run.ID, err)
	}
	delivered := 0
	for _, o := range orders {
		if o.Delivered {
			delivered++
		}
	}
	from := run.Status
	to := nextStatus(from, delivered, len(orders))
	if to == from || !from.CanTransition(to) {
		return nil
	}
	if err := run.SetStatus(to); err != nil {
		return err
	}
	if err := tx.Runs().Upsert(ctx, run); err != nil {
		return err
	}
	r := run.Clone()
	ev.add(func() { d.emitter.EmitRunStatusChanged(r, from) })
	return nil
}

// MarkRunComplete closes a run whose orders are all delivered. confirm must
// be true; the run and its active manifest are completed together.
func (d *Dispatcher) MarkRunComplete(ctx context.Context, runID string, confirm bool) (*store.Run, error) {
	if !confirm {
		return nil, invalid("completing run %s requires confirmation", runID)
	}
	var out *store.Run
	err := d.update(ctx, "complete run", func(tx store.Tx, ev *events) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return &RunLockedError{RunID: run.ID, Op: "complete run"}
		}
		orders, err := runOrders(ctx, tx, run)
		if err != nil {
			return err
		}
		undelivered := 0
		for _, o := range orders {
			if !o.Delivered {
				undelivered++
			}
		}
		if len(orders) == 0 || undelivered > 0 {
			return &IncompleteOrdersError{RunID: run.ID, Undelivered: undelivered, Total: len(orders)}
		}

		now := d.now()
		from := run.Status
		if err := run.SetStatus(store.RunCompleted); err != nil {
			return err
		}
		run.CompletedAt = &now
		if err := tx.Runs().Upsert(ctx, run); err != nil {
			return err
		}

		active, err := activeManifest(ctx, tx, run.ID)
		if err != nil {
			return err
		}
		manifestID := ""
		if active != nil {
			if err := active.SetStatus(store.ManifestCompleted); err != nil {
				return err
			}
			if err := tx.Manifests().Upsert(ctx, active); err != nil {
				return err
			}
			manifestID = active.ID
		}

		out = run.Clone()
		r := run.Clone()
		ev.add(func() {
			d.emitter.EmitRunStatusChanged(r, from)
			d.emitter.EmitRunCompleted(r, manifestID)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
