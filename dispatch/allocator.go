package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/cowaramupagencies/gas/store"
)

// usage sums the counted bottles attached to run, leaving out excludeID.
func (d *Dispatcher) usage(ctx context.Context, tx store.Tx, run *store.Run, excludeID string) (int, error) {
	used := 0
	for _, id := range run.OrderIDs {
		if id == excludeID {
			continue
		}
		o, err := tx.Orders().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("load order %s: %w", id, err)
		}
		used += d.policy.Counted(o.Bottles)
	}
	return used, nil
}

// autoPick returns the first run on date, by run number, that can take
// counted more bottles. Completed runs are skipped and no run is created;
// nil means nothing fits.
func (d *Dispatcher) autoPick(ctx context.Context, tx store.Tx, date string, counted int, excludeID string) (*store.Run, error) {
	runs, err := runsForDate(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.Status.IsTerminal() {
			continue
		}
		used, err := d.usage(ctx, tx, r, excludeID)
		if err != nil {
			return nil, err
		}
		if d.policy.Fits(used, counted) {
			return r, nil
		}
	}
	return nil, nil
}

// checkFits validates attaching an order with counted bottles for date to run.
func (d *Dispatcher) checkFits(ctx context.Context, tx store.Tx, run *store.Run, orderID, date string, counted int) error {
	if run.Status.IsTerminal() {
		return &RunLockedError{RunID: run.ID, Op: "attach order"}
	}
	if run.DeliveryDate != date {
		return invalid("run %d is for %s, order is for %s", run.RunNumber, run.DeliveryDate, date)
	}
	used, err := d.usage(ctx, tx, run, orderID)
	if err != nil {
		return err
	}
	if !d.policy.Fits(used, counted) {
		return &CapacityError{RunID: run.ID, RunNumber: run.RunNumber, Used: used, Adding: counted, Limit: d.policy.Limit}
	}
	return nil
}

// detach takes order off its run and leaves it unassigned with no delivery
// state. The run is saved and its status recomputed; the caller saves order.
func (d *Dispatcher) detach(ctx context.Context, tx store.Tx, ev *events, order *store.Order) error {
	if order.RunID == "" {
		return order.SetStatus(store.OrderUnassigned)
	}
	run, err := tx.Runs().Get(ctx, order.RunID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		run = nil
	case err != nil:
		return fmt.Errorf("load run %s: %w", order.RunID, err)
	case run.Status.IsTerminal():
		return &RunLockedError{RunID: run.ID, Op: "detach order"}
	}
	order.RunID = ""
	if err := order.SetStatus(store.OrderUnassigned); err != nil {
		return err
	}
	order.ClearDelivery()
	if run == nil {
		return nil
	}
	run.DetachOrder(order.ID)
	if err := tx.Runs().Upsert(ctx, run); err != nil {
		return err
	}
	return d.recompute(ctx, tx, ev, run)
}

// attach puts order on run, which must already have passed checkFits.
// The run is saved; the caller saves order and then recomputes run status.
func (d *Dispatcher) attach(ctx context.Context, tx store.Tx, order *store.Order, run *store.Run) error {
	if order.RunID != run.ID {
		order.ClearDelivery()
	}
	order.RunID = run.ID
	if !order.Delivered {
		if err := order.SetStatus(store.OrderAssigned); err != nil {
			return err
		}
	}
	run.AttachOrder(order.ID)
	return tx.Runs().Upsert(ctx, run)
}

// AssignOrderToRun moves an order onto an explicitly chosen run, rejecting
// the move with a CapacityError when the run has no room for it.
func (d *Dispatcher) AssignOrderToRun(ctx context.Context, orderID, runID string) error {
	return d.update(ctx, "assign order", func(tx store.Tx, ev *events) error {
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return &RunLockedError{RunID: run.ID, Op: "attach order"}
		}
		if order.RunID == run.ID {
			return nil
		}
		if err := d.checkFits(ctx, tx, run, order.ID, order.DeliveryDate, d.policy.Counted(order.Bottles)); err != nil {
			return err
		}
		from := order.RunID
		if err := d.detach(ctx, tx, ev, order); err != nil {
			return err
		}
		if err := d.attach(ctx, tx, order, run); err != nil {
			return err
		}
		if err := d.saveOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := d.recompute(ctx, tx, ev, run); err != nil {
			return err
		}
		o := order.Clone()
		ev.add(func() { d.emitter.EmitOrderChanged(o, from, "assigned") })
		return nil
	})
}

// AutoAssignOrder places an unassigned dated order on the first run for its
// date with room. It returns the chosen run, or nil when none fits and the
// order stays unassigned.
func (d *Dispatcher) AutoAssignOrder(ctx context.Context, orderID string) (*store.Run, error) {
	var out *store.Run
	err := d.update(ctx, "auto-assign order", func(tx store.Tx, ev *events) error {
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.RunID != "" {
			run, err := getRun(ctx, tx, order.RunID)
			if err != nil {
				return err
			}
			out = run
			return nil
		}
		if order.DeliveryDate == "" {
			return invalid("order %s has no delivery date", order.ID)
		}
		run, err := d.autoPick(ctx, tx, order.DeliveryDate, d.policy.Counted(order.Bottles), order.ID)
		if err != nil || run == nil {
			return err
		}
		if err := d.place(ctx, tx, ev, order, run); err != nil {
			return err
		}
		out = run.Clone()
		o := order.Clone()
		ev.add(func() { d.emitter.EmitOrderChanged(o, "", "assigned") })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DetachOrder leaves an order unassigned. It always succeeds unless the
// order's run is completed.
func (d *Dispatcher) DetachOrder(ctx context.Context, orderID string) error {
	return d.update(ctx, "detach order", func(tx store.Tx, ev *events) error {
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.RunID == "" {
			return nil
		}
		from := order.RunID
		if err := d.detach(ctx, tx, ev, order); err != nil {
			return err
		}
		if err := d.saveOrder(ctx, tx, order); err != nil {
			return err
		}
		o := order.Clone()
		ev.add(func() { d.emitter.EmitOrderChanged(o, from, "detached") })
		return nil
	})
}

// RunCapacities reports each run on date with its counted usage. When
// excludeOrderID is set that order is left out of the sums, and a run is
// full when it cannot also take candidate more counted bottles.
func (d *Dispatcher) RunCapacities(ctx context.Context, date, excludeOrderID string, candidate int) ([]RunCapacity, error) {
	out := []RunCapacity{}
	err := d.view(ctx, func(tx store.Tx) error {
		runs, err := runsForDate(ctx, tx, date)
		if err != nil {
			return err
		}
		for _, r := range runs {
			rc, err := d.capacityOf(ctx, tx, r, excludeOrderID, candidate)
			if err != nil {
				return err
			}
			out = append(out, rc)
		}
		return nil
	})
	return out, err
}

func (d *Dispatcher) capacityOf(ctx context.Context, tx store.Tx, r *store.Run, excludeOrderID string, candidate int) (RunCapacity, error) {
	used, err := d.usage(ctx, tx, r, excludeOrderID)
	if err != nil {
		return RunCapacity{}, err
	}
	if candidate < 1 {
		candidate = 1
	}
	return RunCapacity{
		RunID:     r.ID,
		RunNumber: r.RunNumber,
		Status:    r.Status,
		Used:      used,
		Limit:     d.policy.Limit,
		Full:      r.Status.IsTerminal() || !d.policy.Fits(used, candidate),
	}, nil
}
