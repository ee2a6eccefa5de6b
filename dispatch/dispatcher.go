package dispatch

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cowaramupagencies/gas/bottles"
	"github.com/cowaramupagencies/gas/store"
)

// Dispatcher owns the run capacity and manifest lifecycle rules. Every public
// operation is one store unit of work that re-reads the state it validates;
// events are emitted only once that unit of work has committed.
type Dispatcher struct {
	st      store.Store
	emitter Emitter
	policy  bottles.Policy
	now     func() time.Time
	newID   func() string
}

func NewDispatcher(st store.Store, emitter Emitter, policy bottles.Policy) *Dispatcher {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Dispatcher{
		st:      st,
		emitter: emitter,
		policy:  policy,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetClock replaces the time source used for timestamps.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

func (d *Dispatcher) Policy() bottles.Policy { return d.policy }

// events queues emitter calls until the unit of work commits.
type events []func()

func (e *events) add(fn func()) { *e = append(*e, fn) }

// update runs fn as one unit of work and emits its queued events on success.
func (d *Dispatcher) update(ctx context.Context, op string, fn func(tx store.Tx, ev *events) error) error {
	var ev events
	err := d.st.Update(ctx, func(tx store.Tx) error {
		ev = ev[:0]
		return fn(tx, &ev)
	})
	if err != nil {
		log.Printf("dispatch: %s: %v", op, err)
		return err
	}
	for _, emit := range ev {
		emit()
	}
	return nil
}

func (d *Dispatcher) view(ctx context.Context, fn func(tx store.Tx) error) error {
	return d.st.View(ctx, fn)
}

func getOrder(ctx context.Context, tx store.Tx, id string) (*store.Order, error) {
	o, err := tx.Orders().Get(ctx, id)
	if err != nil {
		return nil, notFound("order", id, err)
	}
	return o, nil
}

func getRun(ctx context.Context, tx store.Tx, id string) (*store.Run, error) {
	r, err := tx.Runs().Get(ctx, id)
	if err != nil {
		return nil, notFound("run", id, err)
	}
	return r, nil
}

func getManifest(ctx context.Context, tx store.Tx, id string) (*store.Manifest, error) {
	m, err := tx.Manifests().Get(ctx, id)
	if err != nil {
		return nil, notFound("manifest", id, err)
	}
	return m, nil
}

// lookupCustomer returns nil for a dangling customer reference.
func lookupCustomer(ctx context.Context, tx store.Tx, id string) (*store.Customer, error) {
	if id == "" {
		return nil, nil
	}
	c, err := tx.Customers().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// runOrders loads the run's orders in attachment order, skipping ids whose
// order no longer exists.
func runOrders(ctx context.Context, tx store.Tx, run *store.Run) ([]*store.Order, error) {
	out := make([]*store.Order, 0, len(run.OrderIDs))
	for _, id := range run.OrderIDs {
		o, err := tx.Orders().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// runsForDate returns the date's runs in run-number order.
func runsForDate(ctx context.Context, tx store.Tx, date string) ([]*store.Run, error) {
	all, err := tx.Runs().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*store.Run
	for _, r := range all {
		if r.DeliveryDate == date {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunNumber < out[j].RunNumber })
	return out, nil
}
