package dispatch

import (
	"context"
	"testing"

	"github.com/cowaramupagencies/gas/bottles"
	"github.com/cowaramupagencies/gas/store/memstore"
)

func TestWeekOverview(t *testing.T) {
	d, _ := newTestDispatcher(t, memstore.New())
	ctx := context.Background()

	// 2024-06-10 is a Monday.
	mustCreateOrder(t, d, input("Alice", "0400 000 001", 2, "2024-06-10", ""))
	mustCreateOrder(t, d, input("Bob", "0400 000 002", 3, "2024-06-12", ""))
	mustCreateOrder(t, d, input("Cleo", "0400 000 003", 1, "2024-06-12", ""))
	mustCreateOrder(t, d, input("Dan", "0400 000 004", 5, "2024-06-17", ""))

	days, err := d.WeekOverview(ctx, "2024-06-13")
	if err != nil {
		t.Fatalf("week overview: %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("days = %d, want 7", len(days))
	}
	if days[0].Date != "2024-06-10" || days[0].Weekday != "Monday" {
		t.Errorf("first day = %s %s, want 2024-06-10 Monday", days[0].Date, days[0].Weekday)
	}
	if days[6].Date != "2024-06-16" {
		t.Errorf("last day = %s, want 2024-06-16", days[6].Date)
	}
	if days[0].Orders != 1 || days[0].Bottles != 2 {
		t.Errorf("Monday = %+v, want 1 order 2 bottles", days[0])
	}
	if days[2].Orders != 2 || days[2].Bottles != 4 {
		t.Errorf("Wednesday = %+v, want 2 orders 4 bottles", days[2])
	}

	sunday, err := d.WeekOverview(ctx, "2024-06-16")
	if err != nil {
		t.Fatalf("week overview: %v", err)
	}
	if sunday[0].Date != "2024-06-10" {
		t.Errorf("week of Sunday starts %s, want 2024-06-10", sunday[0].Date)
	}
}

func TestOrdersInRangeAndByDate(t *testing.T) {
	d, _ := newTestDispatcher(t, memstore.New())
	ctx := context.Background()

	mustCreateOrder(t, d, input("Alice", "0400 000 001", 1, "2024-06-12", ""))
	mustCreateOrder(t, d, input("Bob", "0400 000 002", 1, "2024-06-10", ""))
	mustCreateOrder(t, d, input("Cleo", "0400 000 003", 1, "2024-06-20", ""))
	mustCreateOrder(t, d, input("Dan", "0400 000 004", 1, "", ""))

	got, err := d.OrdersInRange(ctx, "2024-06-10", "2024-06-12")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 || got[0].DeliveryDate != "2024-06-10" || got[1].DeliveryDate != "2024-06-12" {
		t.Errorf("range = %d orders, want 06-10 then 06-12", len(got))
	}
	if _, err := d.OrdersInRange(ctx, "2024-06-12", "2024-06-10"); err == nil {
		t.Error("reversed range accepted")
	}

	byDate, err := d.OrdersByDate(ctx, "2024-06-20")
	if err != nil {
		t.Fatalf("by date: %v", err)
	}
	if len(byDate) != 1 || byDate[0].Customer == nil || byDate[0].Customer.Name != "Cleo" {
		t.Errorf("by date = %+v, want Cleo's order", byDate)
	}
}

func TestUndeliveredAndStock(t *testing.T) {
	d, _ := newTestDispatcher(t, memstore.New())
	ctx := context.Background()

	run, orders := dispatchedRun(t, d, 2, 3)
	if _, err := d.ToggleDelivery(ctx, orders[0].ID, run.ID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	in := input("Harbour Cafe", "0400 000 777", 1, "", "")
	in.Bottles[bottles.TypeForklift18kg] = 2
	in.Bottles[bottles.TypeForklift15kg] = 1
	mustCreateOrder(t, d, in)

	all, err := d.UndeliveredOrders(ctx, "")
	if err != nil {
		t.Fatalf("undelivered: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("undelivered = %d, want 2", len(all))
	}
	cafe, err := d.UndeliveredOrders(ctx, "harbour")
	if err != nil {
		t.Fatalf("undelivered filtered: %v", err)
	}
	if len(cafe) != 1 || cafe[0].Customer.Name != "Harbour Cafe" {
		t.Errorf("filtered = %+v, want the cafe order", cafe)
	}

	sum, err := d.StockSummary(ctx)
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	if sum.ByType[bottles.Type45kg] != 4 {
		t.Errorf("45kg = %d, want 4", sum.ByType[bottles.Type45kg])
	}
	if sum.Forklift != 3 {
		t.Errorf("Forklift = %d, want 3", sum.Forklift)
	}
	if sum.Total != 7 || sum.OrderCount != 2 || sum.Unassigned != 1 {
		t.Errorf("summary = %+v, want total 7 over 2 orders, 1 unassigned", sum)
	}
}

func TestGeneratedRunsOrdering(t *testing.T) {
	d, _ := newTestDispatcher(t, memstore.New())
	ctx := context.Background()

	early := mustCreateRun(t, d, day1)
	late1 := mustCreateRun(t, d, day2)
	late2 := mustCreateRun(t, d, day2)
	mustCreateRun(t, d, day2) // never generated
	for _, r := range []string{late2.ID, early.ID, late1.ID} {
		if _, err := d.GenerateManifest(ctx, r); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}

	runs, err := d.GeneratedRuns(ctx)
	if err != nil {
		t.Fatalf("generated runs: %v", err)
	}
	want := []string{late1.ID, late2.ID, early.ID}
	if len(runs) != len(want) {
		t.Fatalf("generated = %d runs, want %d", len(runs), len(want))
	}
	for i, id := range want {
		if runs[i].Run.ID != id {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].Run.ID, id)
		}
	}
}
