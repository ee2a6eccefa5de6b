package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cowaramupagencies/gas/bottles"
	"github.com/cowaramupagencies/gas/config"
	"github.com/cowaramupagencies/gas/store"
	"github.com/cowaramupagencies/gas/store/memstore"
)

// --- Mock emitter ---

type mockEmitter struct {
	created       []string
	changed       []emitChanged
	deleted       []string
	toggled       []emitToggled
	rescheduled   []string
	runsCreated   []int
	runsRemoved   []emitRemoved
	statusChanges []emitStatus
	completed     []emitCompleted
	manifests     []emitManifest
	customers     []emitCustomer
}

type emitChanged struct {
	orderID string
	action  string
}
type emitToggled struct {
	orderID   string
	delivered bool
}
type emitRemoved struct {
	runID    string
	detached []string
}
type emitStatus struct {
	runID    string
	from, to store.RunStatus
}
type emitCompleted struct {
	runID      string
	manifestID string
}
type emitManifest struct {
	version      int
	supersededID string
}
type emitCustomer struct {
	mobile  string
	created bool
}

func (m *mockEmitter) EmitOrderCreated(o *store.Order) { m.created = append(m.created, o.ID) }
func (m *mockEmitter) EmitOrderChanged(o *store.Order, _, action string) {
	m.changed = append(m.changed, emitChanged{o.ID, action})
}
func (m *mockEmitter) EmitOrderDeleted(orderID, _, _ string) { m.deleted = append(m.deleted, orderID) }
func (m *mockEmitter) EmitDeliveryToggled(o *store.Order, _ string, delivered bool) {
	m.toggled = append(m.toggled, emitToggled{o.ID, delivered})
}
func (m *mockEmitter) EmitOrderRescheduled(o *store.Order, _, _ string) {
	m.rescheduled = append(m.rescheduled, o.ID)
}
func (m *mockEmitter) EmitRunCreated(r *store.Run) { m.runsCreated = append(m.runsCreated, r.RunNumber) }
func (m *mockEmitter) EmitRunRemoved(r *store.Run, detached []string) {
	m.runsRemoved = append(m.runsRemoved, emitRemoved{r.ID, detached})
}
func (m *mockEmitter) EmitRunStatusChanged(r *store.Run, from store.RunStatus) {
	m.statusChanges = append(m.statusChanges, emitStatus{r.ID, from, r.Status})
}
func (m *mockEmitter) EmitRunCompleted(r *store.Run, manifestID string) {
	m.completed = append(m.completed, emitCompleted{r.ID, manifestID})
}
func (m *mockEmitter) EmitManifestGenerated(mf *store.Manifest, supersededID string) {
	m.manifests = append(m.manifests, emitManifest{mf.Version, supersededID})
}
func (m *mockEmitter) EmitCustomerChanged(c *store.Customer, created bool) {
	m.customers = append(m.customers, emitCustomer{c.Mobile, created})
}

// --- Test helpers ---

const (
	day1 = "2024-06-10"
	day2 = "2024-06-11"
)

var fixedNow = time.Date(2024, 6, 10, 8, 30, 0, 0, time.UTC)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func newTestDispatcher(t *testing.T, st store.Store) (*Dispatcher, *mockEmitter) {
	t.Helper()
	emitter := &mockEmitter{}
	d := NewDispatcher(st, emitter, bottles.DefaultPolicy())
	d.SetClock(func() time.Time { return fixedNow })
	return d, emitter
}

func input(name, mobile string, heavy int, date, runID string) OrderInput {
	return OrderInput{
		Customer:     CustomerInput{Name: name, Mobile: mobile, Address: "12 Bussell Hwy"},
		Bottles:      map[string]any{bottles.Type45kg: heavy},
		DeliveryDate: date,
		RunID:        runID,
	}
}

func mustCreateOrder(t *testing.T, d *Dispatcher, in OrderInput) *store.Order {
	t.Helper()
	o, err := d.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func mustCreateRun(t *testing.T, d *Dispatcher, date string) *store.Run {
	t.Helper()
	r, err := d.CreateRun(context.Background(), date)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return r
}

func mustGetOrder(t *testing.T, d *Dispatcher, id string) *store.Order {
	t.Helper()
	v, err := d.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return v.Order
}

func mustGetRun(t *testing.T, d *Dispatcher, id string) *RunDetail {
	t.Helper()
	detail, err := d.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("get run %s: %v", id, err)
	}
	return detail
}

// dispatchedRun creates a run for day1 holding one order per heavy count
// and generates its first manifest.
func dispatchedRun(t *testing.T, d *Dispatcher, heavy ...int) (*store.Run, []*store.Order) {
	t.Helper()
	run := mustCreateRun(t, d, day1)
	var orders []*store.Order
	for i, n := range heavy {
		mobile := "0400 000 " + string(rune('a'+i))
		orders = append(orders, mustCreateOrder(t, d, input("Customer", mobile, n, day1, run.ID)))
	}
	if _, err := d.GenerateManifest(context.Background(), run.ID); err != nil {
		t.Fatalf("generate manifest: %v", err)
	}
	return run, orders
}

// --- Scenario tests ---

func TestAutoAssignFallsThroughWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	o1 := mustCreateOrder(t, d, input("Alice", "0400 000 001", 5, day1, ""))
	if o1.Status != store.OrderUnassigned {
		t.Errorf("new order status = %q, want %q", o1.Status, store.OrderUnassigned)
	}
	run := mustCreateRun(t, d, day1)
	if run.RunNumber != 1 {
		t.Errorf("RunNumber = %d, want 1", run.RunNumber)
	}

	got, err := d.AutoAssignOrder(ctx, o1.ID)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if got == nil || got.ID != run.ID {
		t.Fatalf("auto-assign picked %v, want run %s", got, run.ID)
	}
	if used := mustGetRun(t, d, run.ID).Capacity.Used; used != 5 {
		t.Errorf("capacity used = %d, want 5", used)
	}

	o2 := mustCreateOrder(t, d, input("Bob", "0400 000 002", 4, day1, RunAuto))
	if o2.RunID != "" {
		t.Errorf("second order RunID = %q, want empty", o2.RunID)
	}
	if o2.Status != store.OrderUnassigned {
		t.Errorf("second order status = %q, want %q", o2.Status, store.OrderUnassigned)
	}

	runs, err := d.RunsForDate(ctx, day1)
	if err != nil {
		t.Fatalf("runs for date: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("runs = %d, want 1 (no run is auto-created)", len(runs))
	}
}

func TestRegenerateSupersedesAndFreezesSnapshot(t *testing.T) {
	d, emitter := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run, orders := dispatchedRun(t, d, 2, 2, 2)
	v1, err := d.ActiveManifest(ctx, run.ID)
	if err != nil {
		t.Fatalf("active manifest: %v", err)
	}
	if v1.Version != 1 || v1.Snapshot.TotalStops != 3 {
		t.Fatalf("v1 = version %d with %d stops, want version 1 with 3", v1.Version, v1.Snapshot.TotalStops)
	}

	if err := d.DetachOrder(ctx, orders[2].ID); err != nil {
		t.Fatalf("detach: %v", err)
	}
	v2, err := d.GenerateManifest(ctx, run.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if v2.Version != 2 || v2.Status != store.ManifestActive {
		t.Errorf("v2 = version %d %s, want version 2 ACTIVE", v2.Version, v2.Status)
	}
	if v2.Snapshot.TotalStops != 2 || v2.Snapshot.TotalBottles != 4 {
		t.Errorf("v2 stops/bottles = %d/%d, want 2/4", v2.Snapshot.TotalStops, v2.Snapshot.TotalBottles)
	}

	old, err := d.GetManifest(ctx, v1.ID)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if old.Status != store.ManifestSuperseded {
		t.Errorf("v1 status = %q, want %q", old.Status, store.ManifestSuperseded)
	}
	if old.SupersededAt == nil {
		t.Error("v1 SupersededAt not set")
	}
	if len(old.Snapshot.Stops) != 3 {
		t.Errorf("v1 stops = %d, want 3 (frozen)", len(old.Snapshot.Stops))
	}

	history, err := d.ListRunManifests(ctx, run.ID)
	if err != nil {
		t.Fatalf("list manifests: %v", err)
	}
	active := 0
	for _, m := range history {
		if m.Status == store.ManifestActive {
			active++
		}
	}
	if len(history) != 2 || active != 1 {
		t.Errorf("history = %d manifests with %d active, want 2 with 1", len(history), active)
	}

	if len(emitter.manifests) != 2 || emitter.manifests[1].supersededID != v1.ID {
		t.Errorf("manifest events = %+v, want second superseding %s", emitter.manifests, v1.ID)
	}
	if got := mustGetRun(t, d, run.ID).Run.ManifestID; got != v2.ID {
		t.Errorf("run ManifestID = %q, want %q", got, v2.ID)
	}
}

func TestCompleteRunLocksDelivery(t *testing.T) {
	d, emitter := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run, orders := dispatchedRun(t, d, 3, 4)
	for _, o := range orders {
		if _, err := d.ToggleDelivery(ctx, o.ID, run.ID, true); err != nil {
			t.Fatalf("toggle delivery: %v", err)
		}
	}
	if st := mustGetRun(t, d, run.ID).Run.Status; st != store.RunInProgress {
		t.Errorf("status after all delivered = %q, want %q", st, store.RunInProgress)
	}

	done, err := d.MarkRunComplete(ctx, run.ID, true)
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	if done.Status != store.RunCompleted || done.CompletedAt == nil {
		t.Errorf("run = %q completedAt=%v, want Completed with time", done.Status, done.CompletedAt)
	}
	m, err := d.ListRunManifests(ctx, run.ID)
	if err != nil {
		t.Fatalf("list manifests: %v", err)
	}
	if len(m) != 1 || m[0].Status != store.ManifestCompleted {
		t.Errorf("manifest status = %v, want single COMPLETED", m)
	}
	if len(emitter.completed) != 1 || emitter.completed[0].manifestID != m[0].ID {
		t.Errorf("completed events = %+v", emitter.completed)
	}

	for _, o := range orders {
		_, err := d.ToggleDelivery(ctx, o.ID, run.ID, false)
		var locked *RunLockedError
		if !errors.As(err, &locked) {
			t.Errorf("toggle on completed run: err = %v, want RunLockedError", err)
		}
	}
	if _, err := d.MarkRunComplete(ctx, run.ID, true); !errors.As(err, new(*RunLockedError)) {
		t.Errorf("second completion: err = %v, want RunLockedError", err)
	}
	if _, err := d.GenerateManifest(ctx, run.ID); !errors.As(err, new(*RunLockedError)) {
		t.Errorf("generate on completed run: err = %v, want RunLockedError", err)
	}
}

func TestDateEditDetachesOrder(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	o := mustCreateOrder(t, d, input("Carol", "0400 000 003", 3, day1, run.ID))
	if o.RunID != run.ID || o.Status != store.OrderAssigned {
		t.Fatalf("order run=%q status=%q, want %q Assigned", o.RunID, o.Status, run.ID)
	}

	edited, err := d.EditOrder(ctx, o.ID, input("Carol", "0400 000 003", 3, day2, ""))
	if err != nil {
		t.Fatalf("edit order: %v", err)
	}
	if edited.RunID != "" {
		t.Errorf("RunID = %q, want empty", edited.RunID)
	}
	if edited.Status != store.OrderUnassigned {
		t.Errorf("Status = %q, want %q", edited.Status, store.OrderUnassigned)
	}
	if edited.DeliveryDate != day2 {
		t.Errorf("DeliveryDate = %q, want %q", edited.DeliveryDate, day2)
	}
	if ids := mustGetRun(t, d, run.ID).Run.OrderIDs; len(ids) != 0 {
		t.Errorf("run OrderIDs = %v, want empty", ids)
	}
}

func TestRescheduleRespectsCompletedRun(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	done, doneOrders := dispatchedRun(t, d, 2)
	if _, err := d.ToggleDelivery(ctx, doneOrders[0].ID, done.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := d.MarkRunComplete(ctx, done.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := d.RescheduleOrder(ctx, doneOrders[0].ID, done.ID, day2)
	if !errors.As(err, new(*RunLockedError)) {
		t.Fatalf("reschedule on completed run: err = %v, want RunLockedError", err)
	}
	if o := mustGetOrder(t, d, doneOrders[0].ID); !o.Delivered || o.RunID != done.ID {
		t.Errorf("order changed by rejected reschedule: %+v", o)
	}

	open := mustCreateRun(t, d, day1)
	o := mustCreateOrder(t, d, input("Dan", "0400 000 004", 2, day1, open.ID))
	if _, err := d.GenerateManifest(ctx, open.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := d.ToggleDelivery(ctx, o.ID, open.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	moved, err := d.RescheduleOrder(ctx, o.ID, open.ID, day2)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Delivered || moved.DeliveredAt != nil || moved.DeliveredRunID != "" {
		t.Errorf("delivery state not cleared: %+v", moved)
	}
	if moved.RunID != "" || moved.Status != store.OrderUnassigned || moved.DeliveryDate != day2 {
		t.Errorf("moved = run %q status %q date %q, want unassigned on %s", moved.RunID, moved.Status, moved.DeliveryDate, day2)
	}
	// The run is now empty, so it keeps its last status.
	if st := mustGetRun(t, d, open.ID).Run.Status; st != store.RunInProgress {
		t.Errorf("run status = %q, want %q", st, store.RunInProgress)
	}

	if _, err := d.RescheduleOrder(ctx, o.ID, open.ID, "2024-02-30"); !errors.As(err, new(*InvalidDateError)) {
		t.Errorf("bad date: err = %v, want InvalidDateError", err)
	}
}

func TestRescheduleRequiresOrderOnRun(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run, orders := dispatchedRun(t, d, 2)
	other := mustCreateRun(t, d, day1)
	if _, err := d.GenerateManifest(ctx, other.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err := d.RescheduleOrder(ctx, orders[0].ID, other.ID, day2)
	if !errors.As(err, new(*ValidationError)) {
		t.Fatalf("reschedule via wrong run: err = %v, want ValidationError", err)
	}
	o := mustGetOrder(t, d, orders[0].ID)
	if o.RunID != run.ID || o.DeliveryDate != day1 || o.Status != store.OrderAssigned {
		t.Errorf("order changed by rejected reschedule: run %q date %q status %q", o.RunID, o.DeliveryDate, o.Status)
	}
	if ids := mustGetRun(t, d, run.ID).Run.OrderIDs; len(ids) != 1 || ids[0] != orders[0].ID {
		t.Errorf("run OrderIDs = %v, want [%s]", ids, orders[0].ID)
	}

	loose := mustCreateOrder(t, d, input("Eve", "0400 000 005", 1, day1, ""))
	if _, err := d.RescheduleOrder(ctx, loose.ID, run.ID, day2); !errors.As(err, new(*ValidationError)) {
		t.Errorf("reschedule of unassigned order: err = %v, want ValidationError", err)
	}
}

func TestOrderWritesUseDispatcherClock(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run, orders := dispatchedRun(t, d, 1)
	later := fixedNow.Add(2 * time.Hour)
	d.SetClock(func() time.Time { return later })
	if _, err := d.ToggleDelivery(ctx, orders[0].ID, run.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	o := mustGetOrder(t, d, orders[0].ID)
	if !o.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", o.UpdatedAt, later)
	}
	if !o.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", o.CreatedAt, fixedNow)
	}
}

func TestEditRejectsMobileOfAnotherCustomer(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	mustCreateOrder(t, d, input("Alice", "0400 000 001", 1, "", ""))
	bob := mustCreateOrder(t, d, input("Bob", "0400 000 002", 1, "", ""))

	_, err := d.EditOrder(ctx, bob.ID, input("Bob", " 0400 000 001 ", 1, "", ""))
	if !errors.As(err, new(*ValidationError)) {
		t.Fatalf("edit to Alice's mobile: err = %v, want ValidationError", err)
	}
	if c := mustGetOrderView(t, d, bob.ID).Customer; c.Mobile != "0400 000 002" {
		t.Errorf("Mobile = %q, want unchanged", c.Mobile)
	}

	edited, err := d.EditOrder(ctx, bob.ID, input("Bob", "0400 000 003", 1, "", ""))
	if err != nil {
		t.Fatalf("edit to a free mobile: %v", err)
	}
	if c := mustGetOrderView(t, d, edited.ID).Customer; c.Mobile != "0400 000 003" {
		t.Errorf("Mobile = %q, want %q", c.Mobile, "0400 000 003")
	}
}

// --- Capacity ---

func TestExplicitAssignOverCapacity(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	mustCreateOrder(t, d, input("Alice", "0400 000 001", 6, day1, run.ID))
	o := mustCreateOrder(t, d, input("Bob", "0400 000 002", 3, day1, ""))

	err := d.AssignOrderToRun(ctx, o.ID, run.ID)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want CapacityError", err)
	}
	if capErr.Used != 6 || capErr.Adding != 3 || capErr.Limit != 8 {
		t.Errorf("CapacityError = %+v, want used 6 adding 3 limit 8", capErr)
	}
	if got := mustGetOrder(t, d, o.ID); got.RunID != "" || got.Status != store.OrderUnassigned {
		t.Errorf("order mutated by rejected assign: run %q status %q", got.RunID, got.Status)
	}

	// Non-counted types never use capacity.
	light := input("Cleo", "0400 000 005", 0, day1, "")
	light.Bottles = map[string]any{bottles.Type8_5kg: 10, bottles.TypeForklift18kg: 4}
	lo := mustCreateOrder(t, d, light)
	if err := d.AssignOrderToRun(ctx, lo.ID, run.ID); err != nil {
		t.Errorf("assign non-counted order: %v", err)
	}
}

func TestCreateWithFullRunWritesNothing(t *testing.T) {
	db := testDB(t)
	d, emitter := newTestDispatcher(t, db)
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	mustCreateOrder(t, d, input("Alice", "0400 000 001", 8, day1, run.ID))
	createdBefore := len(emitter.created)

	_, err := d.CreateOrder(ctx, input("Newcomer", "0499 999 999", 1, day1, run.ID))
	if !errors.As(err, new(*CapacityError)) {
		t.Fatalf("err = %v, want CapacityError", err)
	}

	var customerCount, orderCount int
	db.View(ctx, func(tx store.Tx) error {
		cs, _ := tx.Customers().ListAll(ctx)
		ors, _ := tx.Orders().ListAll(ctx)
		customerCount, orderCount = len(cs), len(ors)
		return nil
	})
	if customerCount != 1 || orderCount != 1 {
		t.Errorf("after failed create: %d customers %d orders, want 1 and 1", customerCount, orderCount)
	}
	if len(emitter.created) != createdBefore {
		t.Errorf("events emitted for a rolled back create")
	}
}

func TestQuantityEditRechecksCapacity(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	mustCreateOrder(t, d, input("Alice", "0400 000 001", 5, day1, run.ID))
	o := mustCreateOrder(t, d, input("Bob", "0400 000 002", 3, day1, run.ID))

	if _, err := d.EditOrder(ctx, o.ID, input("Bob", "0400 000 002", 4, day1, "")); !errors.As(err, new(*CapacityError)) {
		t.Errorf("grow past limit: err = %v, want CapacityError", err)
	}
	edited, err := d.EditOrder(ctx, o.ID, input("Bob", "0400 000 002", 2, day1, ""))
	if err != nil {
		t.Fatalf("shrink: %v", err)
	}
	if edited.RunID != run.ID || edited.TotalBottleCount != 2 {
		t.Errorf("edited = run %q total %d, want run %s total 2", edited.RunID, edited.TotalBottleCount, run.ID)
	}
}

func TestRunCapacities(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	r1 := mustCreateRun(t, d, day1)
	r2 := mustCreateRun(t, d, day1)
	o := mustCreateOrder(t, d, input("Alice", "0400 000 001", 5, day1, r1.ID))

	caps, err := d.RunCapacities(ctx, day1, "", 4)
	if err != nil {
		t.Fatalf("capacities: %v", err)
	}
	if len(caps) != 2 {
		t.Fatalf("capacities = %d runs, want 2", len(caps))
	}
	if caps[0].RunID != r1.ID || caps[0].Used != 5 || !caps[0].Full {
		t.Errorf("run 1 = %+v, want used 5 and full for 4 more", caps[0])
	}
	if caps[1].RunID != r2.ID || caps[1].Used != 0 || caps[1].Full {
		t.Errorf("run 2 = %+v, want empty and not full", caps[1])
	}

	caps, err = d.RunCapacities(ctx, day1, o.ID, 4)
	if err != nil {
		t.Fatalf("capacities excluding order: %v", err)
	}
	if caps[0].Used != 0 || caps[0].Full {
		t.Errorf("run 1 excluding order = %+v, want used 0", caps[0])
	}
}

func TestAssignToRunOnOtherDate(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	run := mustCreateRun(t, d, day2)
	o := mustCreateOrder(t, d, input("Alice", "0400 000 001", 1, day1, ""))

	err := d.AssignOrderToRun(context.Background(), o.ID, run.ID)
	if !errors.As(err, new(*ValidationError)) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

// --- Manifests and delivery ---

func TestRegenerateWithoutChangesIsNewVersion(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run, _ := dispatchedRun(t, d, 1, 2)
	v1, _ := d.ActiveManifest(ctx, run.ID)
	v2, err := d.GenerateManifest(ctx, run.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if v2.Version != v1.Version+1 {
		t.Errorf("Version = %d, want %d", v2.Version, v1.Version+1)
	}
	if len(v2.Snapshot.Stops) != len(v1.Snapshot.Stops) {
		t.Fatalf("stops = %d, want %d", len(v2.Snapshot.Stops), len(v1.Snapshot.Stops))
	}
	for i := range v1.Snapshot.Stops {
		if v1.Snapshot.Stops[i] != v2.Snapshot.Stops[i] {
			t.Errorf("stop %d = %+v, want %+v", i, v2.Snapshot.Stops[i], v1.Snapshot.Stops[i])
		}
	}
}

func TestSnapshotContent(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	in := input("Erin", "0400 000 006", 2, day1, run.ID)
	in.Bottles[bottles.TypeForklift15kg] = 1
	in.Notes = "Side gate"
	in.InvoiceNumber = "INV-7"
	mustCreateOrder(t, d, in)

	m, err := d.GenerateManifest(ctx, run.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	s := m.Snapshot
	if s.RunID != run.ID || s.DeliveryDate != day1 || s.RunNumber != 1 {
		t.Errorf("header = %s/%s/%d", s.RunID, s.DeliveryDate, s.RunNumber)
	}
	if len(s.Stops) != 1 {
		t.Fatalf("stops = %d, want 1", len(s.Stops))
	}
	stop := s.Stops[0]
	if stop.StopNumber != 1 || stop.CustomerName != "Erin" || stop.Mobile != "0400 000 006" {
		t.Errorf("stop = %+v", stop)
	}
	if stop.BottleBreakdown != "2 x 45kg, 1 x Forklift 15kg" {
		t.Errorf("BottleBreakdown = %q, want %q", stop.BottleBreakdown, "2 x 45kg, 1 x Forklift 15kg")
	}
	if stop.Quantity != 3 || s.TotalBottles != 3 {
		t.Errorf("quantity/total = %d/%d, want 3/3", stop.Quantity, s.TotalBottles)
	}
	if stop.Notes != "Side gate" || stop.InvoiceNumber != "INV-7" {
		t.Errorf("notes/invoice = %q/%q", stop.Notes, stop.InvoiceNumber)
	}
	if len(s.Breakdown) != len(bottles.Types) || s.Breakdown[bottles.Type8_5kg] != 0 {
		t.Errorf("Breakdown = %v, want every type", s.Breakdown)
	}
}

func TestToggleDeliveryRules(t *testing.T) {
	d, emitter := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	o := mustCreateOrder(t, d, input("Alice", "0400 000 001", 2, day1, run.ID))
	if _, err := d.ToggleDelivery(ctx, o.ID, run.ID, true); !errors.As(err, new(*NoActiveManifestError)) {
		t.Errorf("toggle before manifest: err = %v, want NoActiveManifestError", err)
	}
	if _, err := d.GenerateManifest(ctx, run.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	stray := mustCreateOrder(t, d, input("Bob", "0400 000 002", 1, day1, ""))
	if _, err := d.ToggleDelivery(ctx, stray.ID, run.ID, true); !errors.As(err, new(*ValidationError)) {
		t.Errorf("toggle off-run order: err = %v, want ValidationError", err)
	}

	got, err := d.ToggleDelivery(ctx, o.ID, run.ID, true)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !got.Delivered || got.DeliveredAt == nil || !got.DeliveredAt.Equal(fixedNow) || got.DeliveredRunID != run.ID {
		t.Errorf("delivered order = %+v", got)
	}
	if got.Status != store.OrderDelivered {
		t.Errorf("Status = %q, want %q", got.Status, store.OrderDelivered)
	}
	if st := mustGetRun(t, d, run.ID).Run.Status; st != store.RunInProgress {
		t.Errorf("run status = %q, want %q", st, store.RunInProgress)
	}

	got, err = d.ToggleDelivery(ctx, o.ID, run.ID, false)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if got.Delivered || got.DeliveredAt != nil || got.Status != store.OrderAssigned {
		t.Errorf("undelivered order = %+v", got)
	}
	if st := mustGetRun(t, d, run.ID).Run.Status; st != store.RunPending {
		t.Errorf("run status = %q, want %q", st, store.RunPending)
	}

	want := []emitStatus{
		{run.ID, store.RunPending, store.RunInProgress},
		{run.ID, store.RunInProgress, store.RunPending},
	}
	if len(emitter.statusChanges) != len(want) {
		t.Fatalf("status events = %+v, want %+v", emitter.statusChanges, want)
	}
	for i := range want {
		if emitter.statusChanges[i] != want[i] {
			t.Errorf("status event %d = %+v, want %+v", i, emitter.statusChanges[i], want[i])
		}
	}
}

func TestMarkRunCompleteRules(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	empty := mustCreateRun(t, d, day1)
	if _, err := d.MarkRunComplete(ctx, empty.ID, false); !errors.As(err, new(*ValidationError)) {
		t.Errorf("unconfirmed: err = %v, want ValidationError", err)
	}
	var incomplete *IncompleteOrdersError
	if _, err := d.MarkRunComplete(ctx, empty.ID, true); !errors.As(err, &incomplete) || incomplete.Total != 0 {
		t.Errorf("empty run: err = %v, want IncompleteOrdersError with no orders", err)
	}

	run, orders := dispatchedRun(t, d, 1, 1)
	if _, err := d.ToggleDelivery(ctx, orders[0].ID, run.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := d.MarkRunComplete(ctx, run.ID, true); !errors.As(err, &incomplete) || incomplete.Undelivered != 1 {
		t.Errorf("partial delivery: err = %v, want 1 undelivered", err)
	}
	if st := mustGetRun(t, d, run.ID).Run.Status; st == store.RunCompleted {
		t.Error("run completed despite undelivered order")
	}
}

func TestCompletedRunOrderEdits(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run, orders := dispatchedRun(t, d, 2)
	o := orders[0]
	if _, err := d.ToggleDelivery(ctx, o.ID, run.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := d.MarkRunComplete(ctx, run.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}

	in := input("Customer", "0400 000 a", 2, day1, "")
	in.InvoiceNumber = "INV-99"
	edited, err := d.EditOrder(ctx, o.ID, in)
	if err != nil {
		t.Fatalf("invoice edit on completed run: %v", err)
	}
	if edited.InvoiceNumber != "INV-99" || edited.RunID != run.ID || !edited.Delivered {
		t.Errorf("edited = %+v", edited)
	}

	if _, err := d.EditOrder(ctx, o.ID, input("Customer", "0400 000 a", 3, day1, "")); !errors.As(err, new(*RunLockedError)) {
		t.Errorf("quantity edit: err = %v, want RunLockedError", err)
	}
	if err := d.DetachOrder(ctx, o.ID); !errors.As(err, new(*RunLockedError)) {
		t.Errorf("detach: err = %v, want RunLockedError", err)
	}
	if err := d.DeleteOrder(ctx, o.ID); !errors.As(err, new(*RunLockedError)) {
		t.Errorf("delete: err = %v, want RunLockedError", err)
	}
	if err := d.RemoveRun(ctx, run.ID); !errors.As(err, new(*RunLockedError)) {
		t.Errorf("remove run: err = %v, want RunLockedError", err)
	}
	other := mustCreateOrder(t, d, input("Zed", "0400 000 009", 1, day1, ""))
	if err := d.AssignOrderToRun(ctx, other.ID, run.ID); !errors.As(err, new(*RunLockedError)) {
		t.Errorf("assign: err = %v, want RunLockedError", err)
	}
}

// --- Runs ---

func TestRunNumbersNotReused(t *testing.T) {
	stores := map[string]func() store.Store{
		"sqlite": func() store.Store { return testDB(t) },
		"memory": func() store.Store { return memstore.New() },
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			d, emitter := newTestDispatcher(t, open())
			ctx := context.Background()

			r1 := mustCreateRun(t, d, day1)
			mustCreateRun(t, d, day1)
			if err := d.RemoveRun(ctx, r1.ID); err != nil {
				t.Fatalf("remove: %v", err)
			}
			r3 := mustCreateRun(t, d, day1)
			if r3.RunNumber != 3 {
				t.Errorf("RunNumber = %d, want 3", r3.RunNumber)
			}

			// Removing the newest run must not free its number either.
			if err := d.RemoveRun(ctx, r3.ID); err != nil {
				t.Fatalf("remove newest: %v", err)
			}
			r4 := mustCreateRun(t, d, day1)
			if r4.RunNumber != 4 {
				t.Errorf("RunNumber after removing newest = %d, want 4", r4.RunNumber)
			}

			other := mustCreateRun(t, d, day2)
			if other.RunNumber != 1 {
				t.Errorf("other date RunNumber = %d, want 1", other.RunNumber)
			}
			want := []int{1, 2, 3, 4, 1}
			if len(emitter.runsCreated) != len(want) {
				t.Fatalf("run events = %v, want %v", emitter.runsCreated, want)
			}
			for i, n := range want {
				if emitter.runsCreated[i] != n {
					t.Errorf("run events = %v, want %v", emitter.runsCreated, want)
					break
				}
			}
			if _, err := d.CreateRun(ctx, "10/06/2024"); !errors.As(err, new(*InvalidDateError)) {
				t.Errorf("bad date: err = %v, want InvalidDateError", err)
			}
		})
	}
}

func TestRemoveRunReleasesOrders(t *testing.T) {
	d, emitter := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run, orders := dispatchedRun(t, d, 2, 3)
	if _, err := d.ToggleDelivery(ctx, orders[0].ID, run.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	manifest, _ := d.ActiveManifest(ctx, run.ID)

	if err := d.RemoveRun(ctx, run.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, o := range orders {
		got := mustGetOrder(t, d, o.ID)
		if got.RunID != "" || got.Status != store.OrderUnassigned || got.Delivered {
			t.Errorf("order %s = run %q status %q delivered %v, want released", o.ID, got.RunID, got.Status, got.Delivered)
		}
	}
	if _, err := d.GetRun(ctx, run.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get removed run: err = %v, want not found", err)
	}
	m, err := d.GetManifest(ctx, manifest.ID)
	if err != nil {
		t.Fatalf("manifest of removed run: %v", err)
	}
	if m.Status != store.ManifestSuperseded {
		t.Errorf("manifest status = %q, want %q", m.Status, store.ManifestSuperseded)
	}
	if len(emitter.runsRemoved) != 1 || len(emitter.runsRemoved[0].detached) != 2 {
		t.Errorf("remove events = %+v", emitter.runsRemoved)
	}
}

func TestDetachReattachRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t, testDB(t))
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	a := mustCreateOrder(t, d, input("Alice", "0400 000 001", 3, day1, run.ID))
	b := mustCreateOrder(t, d, input("Bob", "0400 000 002", 4, day1, run.ID))
	before := mustGetRun(t, d, run.ID).Capacity.Used

	if err := d.DetachOrder(ctx, a.ID); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if used := mustGetRun(t, d, run.ID).Capacity.Used; used != 4 {
		t.Errorf("used after detach = %d, want 4", used)
	}
	if err := d.AssignOrderToRun(ctx, a.ID, run.ID); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	detail := mustGetRun(t, d, run.ID)
	if detail.Capacity.Used != before {
		t.Errorf("used after reattach = %d, want %d", detail.Capacity.Used, before)
	}
	if ids := detail.Run.OrderIDs; len(ids) != 2 || ids[0] != b.ID || ids[1] != a.ID {
		t.Errorf("OrderIDs = %v, want [%s %s]", ids, b.ID, a.ID)
	}
	if err := d.DetachOrder(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("detach missing: err = %v, want not found", err)
	}
}

// --- Orders and customers ---

func TestCreateOrderValidation(t *testing.T) {
	d, _ := newTestDispatcher(t, memstore.New())
	ctx := context.Background()

	cases := []OrderInput{
		input("Alice", "0400 000 001", 0, day1, ""),
		input("", "0400 000 001", 1, day1, ""),
		input("Alice", "", 1, day1, ""),
		input("Alice", "0400 000 001", 1, "2024-13-01", ""),
		input("Alice", "0400 000 001", 1, "", RunAuto),
		input("Alice", "0400 000 001", -3, day1, ""),
	}
	for i, in := range cases {
		if _, err := d.CreateOrder(ctx, in); !errors.As(err, new(*ValidationError)) {
			t.Errorf("case %d: err = %v, want ValidationError", i, err)
		}
	}

	in := input("Alice", "0400 000 001", 1, "", "")
	in.Bottles = map[string]any{bottles.Type45kg: "2", "Acetylene": 5}
	o, err := d.CreateOrder(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.TotalBottleCount != 2 || len(o.Bottles) != len(bottles.Types) {
		t.Errorf("bottles = %v total %d, want canonical map totalling 2", o.Bottles, o.TotalBottleCount)
	}
	if o.PreferredDay != DefaultPreferredDay {
		t.Errorf("PreferredDay = %q, want %q", o.PreferredDay, DefaultPreferredDay)
	}
}

func TestCustomerSideEffects(t *testing.T) {
	st := memstore.New()
	d, emitter := newTestDispatcher(t, st)
	ctx := context.Background()

	first := input("Alice", "0400 000 001", 1, "", "")
	first.Notes = "Dog in yard"
	o1 := mustCreateOrder(t, d, first)

	second := input("Alice Smith", " 0400 000 001 ", 2, "", "")
	second.Notes = "   "
	o2 := mustCreateOrder(t, d, second)

	if o1.CustomerID != o2.CustomerID {
		t.Fatalf("customer ids differ: %q vs %q", o1.CustomerID, o2.CustomerID)
	}
	v := mustGetOrderView(t, d, o2.ID)
	c := v.Customer
	if c.Name != "Alice Smith" {
		t.Errorf("Name = %q, want %q", c.Name, "Alice Smith")
	}
	if c.Notes != "Dog in yard" {
		t.Errorf("Notes = %q, want %q", c.Notes, "Dog in yard")
	}
	if len(c.OrderHistory) != 2 || c.OrderHistory[0] != o1.ID || c.OrderHistory[1] != o2.ID {
		t.Errorf("OrderHistory = %v, want [%s %s]", c.OrderHistory, o1.ID, o2.ID)
	}
	if len(emitter.customers) != 2 || !emitter.customers[0].created || emitter.customers[1].created {
		t.Errorf("customer events = %+v, want created then updated", emitter.customers)
	}

	if err := d.DeleteOrder(ctx, o1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	c = mustGetOrderView(t, d, o2.ID).Customer
	if len(c.OrderHistory) != 1 || c.OrderHistory[0] != o2.ID {
		t.Errorf("OrderHistory after delete = %v, want [%s]", c.OrderHistory, o2.ID)
	}
	if _, err := d.GetOrder(ctx, o1.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted order: err = %v, want not found", err)
	}
}

func mustGetOrderView(t *testing.T, d *Dispatcher, id string) *OrderView {
	t.Helper()
	v, err := d.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return v
}

func TestSetDeliveryDate(t *testing.T) {
	d, _ := newTestDispatcher(t, memstore.New())
	ctx := context.Background()

	run := mustCreateRun(t, d, day1)
	o := mustCreateOrder(t, d, input("Alice", "0400 000 001", 1, day1, run.ID))

	got, err := d.SetDeliveryDate(ctx, o.ID, "")
	if err != nil {
		t.Fatalf("clear date: %v", err)
	}
	if got.DeliveryDate != "" || got.RunID != "" || got.Status != store.OrderUnassigned {
		t.Errorf("cleared = date %q run %q status %q", got.DeliveryDate, got.RunID, got.Status)
	}
	if _, err := d.SetDeliveryDate(ctx, o.ID, "2024-6-1"); !errors.As(err, new(*InvalidDateError)) {
		t.Errorf("bad date: err = %v, want InvalidDateError", err)
	}
	got, err = d.SetDeliveryDate(ctx, o.ID, day2)
	if err != nil {
		t.Fatalf("set date: %v", err)
	}
	if got.DeliveryDate != day2 {
		t.Errorf("DeliveryDate = %q, want %q", got.DeliveryDate, day2)
	}
}

func TestLegacyOrderCountsAgainstCapacity(t *testing.T) {
	db := testDB(t)
	d, _ := newTestDispatcher(t, db)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO orders (id, customer_id, bottle_type, quantity, delivery_date, status)
		VALUES ('legacy-1', '', '', 6, ?, '')`, day1); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	o := mustGetOrder(t, d, "legacy-1")
	if o.Bottles.Count(bottles.Type45kg) != 6 || o.TotalBottleCount != 6 {
		t.Errorf("legacy bottles = %v total %d, want 6 x 45kg", o.Bottles, o.TotalBottleCount)
	}
	if o.Status != store.OrderUnassigned {
		t.Errorf("legacy status = %q, want %q", o.Status, store.OrderUnassigned)
	}

	run := mustCreateRun(t, d, day1)
	if err := d.AssignOrderToRun(ctx, o.ID, run.ID); err != nil {
		t.Fatalf("assign legacy order: %v", err)
	}
	if _, err := d.CreateOrder(ctx, input("Bob", "0400 000 002", 3, day1, run.ID)); !errors.As(err, new(*CapacityError)) {
		t.Errorf("err = %v, want CapacityError", err)
	}

	m, err := d.GenerateManifest(ctx, run.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if m.Snapshot.Stops[0].CustomerName != "Unknown" {
		t.Errorf("CustomerName = %q, want %q", m.Snapshot.Stops[0].CustomerName, "Unknown")
	}
}
