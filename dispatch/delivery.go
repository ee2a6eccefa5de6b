package dispatch

import (
	"context"

	"github.com/cowaramupagencies/gas/store"
)

// ToggleDelivery marks an order on a dispatched run as delivered or not
// delivered, then recomputes the run's status.
func (d *Dispatcher) ToggleDelivery(ctx context.Context, orderID, runID string, delivered bool) (*store.Order, error) {
	var out *store.Order
	err := d.update(ctx, "toggle delivery", func(tx store.Tx, ev *events) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return &RunLockedError{RunID: run.ID, Op: "toggle delivery"}
		}
		active, err := activeManifest(ctx, tx, run.ID)
		if err != nil {
			return err
		}
		if active == nil {
			return &NoActiveManifestError{RunID: run.ID}
		}
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.RunID != run.ID || !run.HasOrder(order.ID) {
			return invalid("order %s is not on run %d", order.ID, run.RunNumber)
		}

		if delivered {
			now := d.now()
			order.Delivered = true
			order.DeliveredAt = &now
			order.DeliveredRunID = run.ID
			if err := order.SetStatus(store.OrderDelivered); err != nil {
				return err
			}
		} else {
			order.ClearDelivery()
			if err := order.SetStatus(store.OrderAssigned); err != nil {
				return err
			}
		}
		if err := d.saveOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := d.recompute(ctx, tx, ev, run); err != nil {
			return err
		}

		out = order.Clone()
		o := order.Clone()
		ev.add(func() { d.emitter.EmitDeliveryToggled(o, runID, delivered) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RescheduleOrder pulls an order off its run and moves it to newDate,
// unassigned and undelivered. It is not reassigned to a run on the new date.
func (d *Dispatcher) RescheduleOrder(ctx context.Context, orderID, runID, newDate string) (*store.Order, error) {
	var out *store.Order
	err := d.update(ctx, "reschedule order", func(tx store.Tx, ev *events) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return &RunLockedError{RunID: run.ID, Op: "reschedule order"}
		}
		date, err := ParseDate(newDate)
		if err != nil {
			return err
		}
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.RunID != run.ID || !run.HasOrder(order.ID) {
			return invalid("order %s is not on run %d", order.ID, run.RunNumber)
		}

		fromDate := order.DeliveryDate
		fromRun := order.RunID
		run.DetachOrder(order.ID)
		if err := tx.Runs().Upsert(ctx, run); err != nil {
			return err
		}
		order.RunID = ""
		if err := order.SetStatus(store.OrderUnassigned); err != nil {
			return err
		}
		order.ClearDelivery()
		order.DeliveryDate = date.Format(dateLayout)
		if err := d.saveOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := d.recompute(ctx, tx, ev, run); err != nil {
			return err
		}

		out = order.Clone()
		o := order.Clone()
		ev.add(func() { d.emitter.EmitOrderRescheduled(o, fromRun, fromDate) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
