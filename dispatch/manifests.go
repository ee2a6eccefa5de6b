package dispatch

import (
	"context"
	"sort"

	"github.com/cowaramupagencies/gas/bottles"
	"github.com/cowaramupagencies/gas/store"
)

const unknownCustomer = "Unknown"

// runManifests returns every manifest ever generated for runID, by version.
func runManifests(ctx context.Context, tx store.Tx, runID string) ([]*store.Manifest, error) {
	all, err := tx.Manifests().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*store.Manifest
	for _, m := range all {
		if m.RunID == runID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// activeManifest returns the run's ACTIVE manifest, or nil.
func activeManifest(ctx context.Context, tx store.Tx, runID string) (*store.Manifest, error) {
	ms, err := runManifests(ctx, tx, runID)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		if m.Status == store.ManifestActive {
			return m, nil
		}
	}
	return nil, nil
}

// buildSnapshot freezes the run's current orders into numbered stops.
func buildSnapshot(ctx context.Context, tx store.Tx, run *store.Run) (store.Snapshot, error) {
	orders, err := runOrders(ctx, tx, run)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap := store.Snapshot{
		RunID:        run.ID,
		DeliveryDate: run.DeliveryDate,
		RunNumber:    run.RunNumber,
		Stops:        make([]store.Stop, 0, len(orders)),
	}
	breakdown := bottles.New()
	for i, o := range orders {
		c, err := lookupCustomer(ctx, tx, o.CustomerID)
		if err != nil {
			return store.Snapshot{}, err
		}
		stop := store.Stop{
			StopNumber:      i + 1,
			CustomerName:    unknownCustomer,
			BottleBreakdown: o.Bottles.Breakdown(),
			Quantity:        o.Bottles.Total(),
			Notes:           o.Notes,
			InvoiceNumber:   o.InvoiceNumber,
		}
		if c != nil {
			stop.CustomerName = c.Name
			stop.Address = c.Address
			stop.Mobile = c.Mobile
		}
		snap.Stops = append(snap.Stops, stop)
		snap.TotalBottles += stop.Quantity
		breakdown.Add(o.Bottles)
	}
	snap.TotalStops = len(snap.Stops)
	snap.Breakdown = map[string]int(breakdown)
	return snap, nil
}

// GenerateManifest snapshots the run as a new ACTIVE manifest, superseding
// the previous one. Every call creates a new version, even when nothing
// changed.
func (d *Dispatcher) GenerateManifest(ctx context.Context, runID string) (*store.Manifest, error) {
	var out *store.Manifest
	err := d.update(ctx, "generate manifest", func(tx store.Tx, ev *events) error {
		run, err := getRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return &RunLockedError{RunID: run.ID, Op: "generate manifest"}
		}

		existing, err := runManifests(ctx, tx, run.ID)
		if err != nil {
			return err
		}
		now := d.now()
		supersededID := ""
		for _, m := range existing {
			if m.Status != store.ManifestActive {
				continue
			}
			if err := m.SetStatus(store.ManifestSuperseded); err != nil {
				return err
			}
			m.SupersededAt = &now
			if err := tx.Manifests().Upsert(ctx, m); err != nil {
				return err
			}
			supersededID = m.ID
		}

		snap, err := buildSnapshot(ctx, tx, run)
		if err != nil {
			return err
		}
		m := &store.Manifest{
			ID:          d.newID(),
			RunID:       run.ID,
			Version:     len(existing) + 1,
			Status:      store.ManifestActive,
			GeneratedAt: now,
			Snapshot:    snap,
		}
		if err := tx.Manifests().Upsert(ctx, m); err != nil {
			return err
		}
		run.ManifestID = m.ID
		if err := tx.Runs().Upsert(ctx, run); err != nil {
			return err
		}

		out = m.Clone()
		published := m.Clone()
		ev.add(func() { d.emitter.EmitManifestGenerated(published, supersededID) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) GetManifest(ctx context.Context, id string) (*store.Manifest, error) {
	var out *store.Manifest
	err := d.view(ctx, func(tx store.Tx) error {
		var err error
		out, err = getManifest(ctx, tx, id)
		return err
	})
	return out, err
}

// ListRunManifests returns the run's manifest history, oldest version first.
func (d *Dispatcher) ListRunManifests(ctx context.Context, runID string) ([]*store.Manifest, error) {
	var out []*store.Manifest
	err := d.view(ctx, func(tx store.Tx) error {
		if _, err := getRun(ctx, tx, runID); err != nil {
			return err
		}
		var err error
		out, err = runManifests(ctx, tx, runID)
		return err
	})
	return out, err
}

// ActiveManifest returns the run's current manifest or a
// NoActiveManifestError.
func (d *Dispatcher) ActiveManifest(ctx context.Context, runID string) (*store.Manifest, error) {
	var out *store.Manifest
	err := d.view(ctx, func(tx store.Tx) error {
		if _, err := getRun(ctx, tx, runID); err != nil {
			return err
		}
		m, err := activeManifest(ctx, tx, runID)
		if err != nil {
			return err
		}
		if m == nil {
			return &NoActiveManifestError{RunID: runID}
		}
		out = m
		return nil
	})
	return out, err
}
