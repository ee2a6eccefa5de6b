package dispatch

import (
	"context"
	"errors"

	"github.com/cowaramupagencies/gas/bottles"
	"github.com/cowaramupagencies/gas/customers"
	"github.com/cowaramupagencies/gas/store"
)

// chooseRun resolves an OrderInput run choice for order into a run that has
// passed checkFits, or nil to leave the order unassigned. current is the run
// the order is on now, if any; an empty choice keeps it when still valid.
func (d *Dispatcher) chooseRun(ctx context.Context, tx store.Tx, order *store.Order, choice string, current *store.Run) (*store.Run, error) {
	counted := d.policy.Counted(order.Bottles)
	date := order.DeliveryDate
	switch {
	case date == "" || choice == RunNone:
		return nil, nil
	case choice == "":
		if current == nil || current.DeliveryDate != date {
			return nil, nil
		}
		if err := d.checkFits(ctx, tx, current, order.ID, date, counted); err != nil {
			return nil, err
		}
		return current, nil
	case choice == RunAuto:
		return d.autoPick(ctx, tx, date, counted, order.ID)
	default:
		run, err := getRun(ctx, tx, choice)
		if err != nil {
			return nil, err
		}
		if err := d.checkFits(ctx, tx, run, order.ID, date, counted); err != nil {
			return nil, err
		}
		return run, nil
	}
}

// place moves order from its current run to target (nil for none), saving
// order and recomputing the status of every run touched.
func (d *Dispatcher) place(ctx context.Context, tx store.Tx, ev *events, order *store.Order, target *store.Run) error {
	if target == nil || order.RunID != target.ID {
		if err := d.detach(ctx, tx, ev, order); err != nil {
			return err
		}
	}
	if target != nil {
		if err := d.attach(ctx, tx, order, target); err != nil {
			return err
		}
	}
	if err := d.saveOrder(ctx, tx, order); err != nil {
		return err
	}
	if target != nil {
		return d.recompute(ctx, tx, ev, target)
	}
	return nil
}

// saveOrder stamps order with the dispatcher clock and writes it.
func (d *Dispatcher) saveOrder(ctx context.Context, tx store.Tx, order *store.Order) error {
	order.UpdatedAt = d.now()
	return tx.Orders().Upsert(ctx, order)
}

// CreateOrder records a new order for the customer identified by mobile
// number, creating the customer if needed. With a delivery date the order
// may be placed on a run: RunAuto picks the first run with room, a run id
// must fit or the whole call fails with a CapacityError.
func (d *Dispatcher) CreateOrder(ctx context.Context, in OrderInput) (*store.Order, error) {
	q, err := validateOrderInput(&in)
	if err != nil {
		return nil, err
	}
	var out *store.Order
	err = d.update(ctx, "create order", func(tx store.Tx, ev *events) error {
		now := d.now()
		order := &store.Order{
			ID:            d.newID(),
			PreferredDay:  in.PreferredDay,
			DeliveryDate:  in.DeliveryDate,
			InvoiceNumber: in.InvoiceNumber,
			Notes:         in.Notes,
			Status:        store.OrderUnassigned,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		order.SetBottles(q)

		target, err := d.chooseRun(ctx, tx, order, in.RunID, nil)
		if err != nil {
			return err
		}

		c, created, err := customers.FindOrCreate(ctx, tx.Customers(), in.Customer.Name, in.Customer.Mobile, in.Customer.Address)
		if err != nil {
			return err
		}
		order.CustomerID = c.ID

		if err := d.place(ctx, tx, ev, order, target); err != nil {
			return err
		}
		if err := customers.RecordOrder(ctx, tx.Customers(), c.ID, order.ID); err != nil {
			return err
		}
		if err := customers.AppendNote(ctx, tx.Customers(), c.ID, in.Notes); err != nil {
			return err
		}
		c, err = tx.Customers().Get(ctx, c.ID)
		if err != nil {
			return err
		}

		out = order.Clone()
		o := order.Clone()
		ev.add(func() {
			d.emitter.EmitCustomerChanged(c, created)
			d.emitter.EmitOrderCreated(o)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EditOrder replaces an order's fields and its customer's contact details.
// A new delivery date takes the order off a run for the old date; changed
// quantities are re-checked against the run's capacity. Orders on a
// completed run may only have contact details, notes and invoice edited.
func (d *Dispatcher) EditOrder(ctx context.Context, orderID string, in OrderInput) (*store.Order, error) {
	q, err := validateOrderInput(&in)
	if err != nil {
		return nil, err
	}
	var out *store.Order
	err = d.update(ctx, "edit order", func(tx store.Tx, ev *events) error {
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from := order.RunID
		var current *store.Run
		if order.RunID != "" {
			current, err = tx.Runs().Get(ctx, order.RunID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		locked := current != nil && current.Status.IsTerminal()
		if locked && (in.DeliveryDate != order.DeliveryDate || !sameBottles(q, order.Bottles) ||
			(in.RunID != "" && in.RunID != current.ID)) {
			return &RunLockedError{RunID: current.ID, Op: "edit order"}
		}

		c, err := lookupCustomer(ctx, tx, order.CustomerID)
		if err != nil {
			return err
		}
		created := false
		if c != nil {
			if customers.NormalizeMobile(in.Customer.Mobile) != customers.NormalizeMobile(c.Mobile) {
				other, err := customers.FindByMobile(ctx, tx.Customers(), in.Customer.Mobile)
				switch {
				case err == nil && other.ID != c.ID:
					return invalid("mobile %s already belongs to customer %s", in.Customer.Mobile, other.Name)
				case err != nil && !errors.Is(err, store.ErrNotFound):
					return err
				}
			}
			c.Name = in.Customer.Name
			c.Mobile = in.Customer.Mobile
			c.Address = in.Customer.Address
			if err := tx.Customers().Upsert(ctx, c); err != nil {
				return err
			}
		} else {
			c, created, err = customers.FindOrCreate(ctx, tx.Customers(), in.Customer.Name, in.Customer.Mobile, in.Customer.Address)
			if err != nil {
				return err
			}
			order.CustomerID = c.ID
			if err := customers.RecordOrder(ctx, tx.Customers(), c.ID, order.ID); err != nil {
				return err
			}
		}

		order.SetBottles(q)
		order.PreferredDay = in.PreferredDay
		order.DeliveryDate = in.DeliveryDate
		order.InvoiceNumber = in.InvoiceNumber
		order.Notes = in.Notes

		if locked {
			if err := d.saveOrder(ctx, tx, order); err != nil {
				return err
			}
		} else {
			target, err := d.chooseRun(ctx, tx, order, in.RunID, current)
			if err != nil {
				return err
			}
			if err := d.place(ctx, tx, ev, order, target); err != nil {
				return err
			}
		}

		if err := customers.AppendNote(ctx, tx.Customers(), c.ID, in.Notes); err != nil {
			return err
		}
		c, err = tx.Customers().Get(ctx, c.ID)
		if err != nil {
			return err
		}

		out = order.Clone()
		o := order.Clone()
		ev.add(func() {
			d.emitter.EmitCustomerChanged(c, created)
			d.emitter.EmitOrderChanged(o, from, "edited")
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sameBottles(a, b bottles.Quantities) bool {
	for _, t := range bottles.Types {
		if a[t] != b[t] {
			return false
		}
	}
	return true
}

// SetDeliveryDate moves an order to date, or clears its date when date is
// empty. An order on a run for another date is taken off that run.
func (d *Dispatcher) SetDeliveryDate(ctx context.Context, orderID, date string) (*store.Order, error) {
	if date != "" {
		t, err := ParseDate(date)
		if err != nil {
			return nil, err
		}
		date = t.Format(dateLayout)
	}
	var out *store.Order
	err := d.update(ctx, "set delivery date", func(tx store.Tx, ev *events) error {
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.DeliveryDate == date {
			out = order
			return nil
		}
		from := order.RunID
		if order.RunID != "" {
			if err := d.detach(ctx, tx, ev, order); err != nil {
				return err
			}
		}
		order.DeliveryDate = date
		if err := d.saveOrder(ctx, tx, order); err != nil {
			return err
		}
		out = order.Clone()
		o := order.Clone()
		ev.add(func() { d.emitter.EmitOrderChanged(o, from, "date changed") })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOrder removes an order outright, taking it off its run and out of
// its customer's history. Orders on a completed run cannot be deleted.
func (d *Dispatcher) DeleteOrder(ctx context.Context, orderID string) error {
	return d.update(ctx, "delete order", func(tx store.Tx, ev *events) error {
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		runID := order.RunID
		if err := d.detach(ctx, tx, ev, order); err != nil {
			return err
		}
		if err := customers.ForgetOrder(ctx, tx.Customers(), order.CustomerID, order.ID); err != nil {
			return err
		}
		if err := tx.Orders().Delete(ctx, order.ID); err != nil {
			return notFound("order", order.ID, err)
		}
		customerID := order.CustomerID
		ev.add(func() { d.emitter.EmitOrderDeleted(orderID, customerID, runID) })
		return nil
	})
}

// GetOrder returns an order with its customer.
func (d *Dispatcher) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	var out *OrderView
	err := d.view(ctx, func(tx store.Tx) error {
		order, err := getOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		v, err := orderView(ctx, tx, order)
		if err != nil {
			return err
		}
		out = &v
		return nil
	})
	return out, err
}

func orderView(ctx context.Context, tx store.Tx, o *store.Order) (OrderView, error) {
	c, err := lookupCustomer(ctx, tx, o.CustomerID)
	if err != nil {
		return OrderView{}, err
	}
	return OrderView{Order: o, Customer: c, Breakdown: o.Bottles.Breakdown()}, nil
}
