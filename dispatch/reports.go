package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/cowaramupagencies/gas/bottles"
	"github.com/cowaramupagencies/gas/customers"
	"github.com/cowaramupagencies/gas/store"
)

// listOrders returns the views of every order keep accepts, by delivery date
// (undated last) and then creation time.
func listOrders(ctx context.Context, tx store.Tx, keep func(*store.Order) bool) ([]OrderView, error) {
	all, err := tx.Orders().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []OrderView{}
	for _, o := range all {
		if !keep(o) {
			continue
		}
		v, err := orderView(ctx, tx, o)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Order, out[j].Order
		if a.DeliveryDate != b.DeliveryDate {
			if a.DeliveryDate == "" || b.DeliveryDate == "" {
				return b.DeliveryDate == ""
			}
			return a.DeliveryDate < b.DeliveryDate
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

// OrdersByDate lists the orders booked for date.
func (d *Dispatcher) OrdersByDate(ctx context.Context, date string) ([]OrderView, error) {
	t, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	date = t.Format(dateLayout)
	var out []OrderView
	err = d.view(ctx, func(tx store.Tx) error {
		out, err = listOrders(ctx, tx, func(o *store.Order) bool { return o.DeliveryDate == date })
		return err
	})
	return out, err
}

// OrdersInRange lists orders dated from through to, inclusive.
func (d *Dispatcher) OrdersInRange(ctx context.Context, from, to string) ([]OrderView, error) {
	start, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, invalid("range end %s is before start %s", to, from)
	}
	lo, hi := start.Format(dateLayout), end.Format(dateLayout)
	var out []OrderView
	err = d.view(ctx, func(tx store.Tx) error {
		out, err = listOrders(ctx, tx, func(o *store.Order) bool {
			return o.DeliveryDate != "" && o.DeliveryDate >= lo && o.DeliveryDate <= hi
		})
		return err
	})
	return out, err
}

// WeekOverview counts orders and bottles for each day of the Monday to
// Sunday week containing date.
func (d *Dispatcher) WeekOverview(ctx context.Context, date string) ([]DayOverview, error) {
	t, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	offset := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -offset)

	days := make([]DayOverview, 7)
	index := make(map[string]int, 7)
	for i := range days {
		day := monday.AddDate(0, 0, i)
		days[i] = DayOverview{Date: day.Format(dateLayout), Weekday: day.Weekday().String()}
		index[days[i].Date] = i
	}

	err = d.view(ctx, func(tx store.Tx) error {
		orders, err := tx.Orders().ListAll(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			i, ok := index[o.DeliveryDate]
			if !ok {
				continue
			}
			days[i].Orders++
			days[i].Bottles += o.Bottles.Total()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return days, nil
}

// UndeliveredOrders lists every order not yet delivered whose customer
// matches query. An empty query matches all.
func (d *Dispatcher) UndeliveredOrders(ctx context.Context, query string) ([]OrderView, error) {
	var out []OrderView
	err := d.view(ctx, func(tx store.Tx) error {
		var err error
		out, err = listOrders(ctx, tx, func(o *store.Order) bool { return !o.Delivered })
		if err != nil {
			return err
		}
		kept := out[:0]
		for _, v := range out {
			if customers.Matches(v.Customer, query) {
				kept = append(kept, v)
			}
		}
		out = kept
		return nil
	})
	return out, err
}

// StockSummary totals the bottles still to be delivered.
func (d *Dispatcher) StockSummary(ctx context.Context) (*StockSummary, error) {
	sum := &StockSummary{ByType: bottles.New()}
	err := d.view(ctx, func(tx store.Tx) error {
		orders, err := tx.Orders().ListAll(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.Delivered {
				continue
			}
			sum.ByType.Add(o.Bottles)
			sum.OrderCount++
			if o.RunID == "" {
				sum.Unassigned++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sum.Forklift = sum.ByType[bottles.TypeForklift18kg] + sum.ByType[bottles.TypeForklift15kg]
	sum.Total = sum.ByType.Total()
	return sum, nil
}

// RunsForDate returns the date's runs in run-number order with their orders.
func (d *Dispatcher) RunsForDate(ctx context.Context, date string) ([]*RunDetail, error) {
	t, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	date = t.Format(dateLayout)
	out := []*RunDetail{}
	err = d.view(ctx, func(tx store.Tx) error {
		runs, err := runsForDate(ctx, tx, date)
		if err != nil {
			return err
		}
		for _, r := range runs {
			detail, err := d.runDetail(ctx, tx, r)
			if err != nil {
				return err
			}
			out = append(out, detail)
		}
		return nil
	})
	return out, err
}

// ListRuns returns every run, by date and then run number.
func (d *Dispatcher) ListRuns(ctx context.Context) ([]*RunDetail, error) {
	out := []*RunDetail{}
	err := d.view(ctx, func(tx store.Tx) error {
		runs, err := tx.Runs().ListAll(ctx)
		if err != nil {
			return err
		}
		sort.Slice(runs, func(i, j int) bool {
			if runs[i].DeliveryDate != runs[j].DeliveryDate {
				return runs[i].DeliveryDate < runs[j].DeliveryDate
			}
			return runs[i].RunNumber < runs[j].RunNumber
		})
		for _, r := range runs {
			detail, err := d.runDetail(ctx, tx, r)
			if err != nil {
				return err
			}
			out = append(out, detail)
		}
		return nil
	})
	return out, err
}

// GeneratedRuns lists runs that currently have an active manifest, newest
// date first and then by run number.
func (d *Dispatcher) GeneratedRuns(ctx context.Context) ([]*RunDetail, error) {
	out := []*RunDetail{}
	err := d.view(ctx, func(tx store.Tx) error {
		runs, err := tx.Runs().ListAll(ctx)
		if err != nil {
			return err
		}
		sort.Slice(runs, func(i, j int) bool {
			if runs[i].DeliveryDate != runs[j].DeliveryDate {
				return runs[i].DeliveryDate > runs[j].DeliveryDate
			}
			return runs[i].RunNumber < runs[j].RunNumber
		})
		for _, r := range runs {
			detail, err := d.runDetail(ctx, tx, r)
			if err != nil {
				return err
			}
			if detail.Manifest != nil {
				out = append(out, detail)
			}
		}
		return nil
	})
	return out, err
}

// Today returns the current local date in YYYY-MM-DD form.
func (d *Dispatcher) Today() string {
	return d.now().In(time.Local).Format(dateLayout)
}
