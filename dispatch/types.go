package dispatch

import (
	"github.com/cowaramupagencies/gas/bottles"
	"github.com/cowaramupagencies/gas/store"
)

// Run choices accepted in OrderInput.RunID besides an explicit run id.
const (
	RunAuto = "auto" // first run on the delivery date with room
	RunNone = "none" // leave or make the order unassigned
)

const DefaultPreferredDay = "Any"

type CustomerInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Mobile  string `json:"mobile" validate:"required,max=40"`
	Address string `json:"address" validate:"required,max=500"`
}

// OrderInput carries the fields of a create or edit. Bottles accepts loosely
// typed quantities; unknown types are ignored and bad values read as zero.
//
// RunID selects the run: RunAuto, RunNone, a run id, or empty. On create an
// empty RunID leaves the order unassigned; on edit it keeps the current run
// when the delivery date is unchanged.
type OrderInput struct {
	Customer      CustomerInput  `json:"customer"`
	Bottles       map[string]any `json:"bottles"`
	PreferredDay  string         `json:"preferred_day" validate:"max=40"`
	Notes         string         `json:"notes" validate:"max=2000"`
	DeliveryDate  string         `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	InvoiceNumber string         `json:"invoice_number" validate:"max=100"`
	RunID         string         `json:"run_id" validate:"max=64"`
}

// RunCapacity is a run's counted-bottle usage, as shown in run pickers.
type RunCapacity struct {
	RunID     string          `json:"run_id"`
	RunNumber int             `json:"run_number"`
	Status    store.RunStatus `json:"status"`
	Used      int             `json:"used"`
	Limit     int             `json:"limit"`
	Full      bool            `json:"full"`
}

// DayOverview counts the orders booked for one day.
type DayOverview struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Orders  int    `json:"orders"`
	Bottles int    `json:"bottles"`
}

// StockSummary totals undelivered bottles. Forklift sizes are also reported
// combined.
type StockSummary struct {
	ByType     bottles.Quantities `json:"by_type"`
	Forklift   int                `json:"forklift"`
	Total      int                `json:"total"`
	OrderCount int                `json:"order_count"`
	Unassigned int                `json:"unassigned"`
}

// OrderView is an order joined with its customer for listings.
type OrderView struct {
	*store.Order
	Customer  *store.Customer `json:"customer,omitempty"`
	Breakdown string          `json:"breakdown"`
}

// RunDetail is a run with its orders in attachment order.
type RunDetail struct {
	Run      *store.Run      `json:"run"`
	Orders   []OrderView     `json:"orders"`
	Capacity RunCapacity     `json:"capacity"`
	Manifest *store.Manifest `json:"manifest,omitempty"`
}
