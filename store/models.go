package store

import (
	"fmt"
	"time"

	"github.com/cowaramupagencies/gas/bottles"
)

// OrderStatus is the closed set of order states.
type OrderStatus string

const (
	OrderUnassigned OrderStatus = "Unassigned"
	OrderAssigned   OrderStatus = "Assigned"
	OrderDelivered  OrderStatus = "Delivered"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderUnassigned, OrderAssigned, OrderDelivered:
		return true
	}
	return false
}

// RunStatus is the closed set of run states.
type RunStatus string

const (
	RunPending    RunStatus = "Pending"
	RunInProgress RunStatus = "In Progress"
	RunCompleted  RunStatus = "Completed"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunInProgress, RunCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s RunStatus) IsTerminal() bool { return s == RunCompleted }

// ManifestStatus is the closed set of manifest states.
type ManifestStatus string

const (
	ManifestActive     ManifestStatus = "ACTIVE"
	ManifestSuperseded ManifestStatus = "SUPERSEDED"
	ManifestCompleted  ManifestStatus = "COMPLETED"
)

func (s ManifestStatus) Valid() bool {
	switch s {
	case ManifestActive, ManifestSuperseded, ManifestCompleted:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderUnassigned: {OrderAssigned},
	OrderAssigned:   {OrderUnassigned, OrderDelivered},
	OrderDelivered:  {OrderAssigned, OrderUnassigned},
}

var runTransitions = map[RunStatus][]RunStatus{
	RunPending:    {RunInProgress, RunCompleted},
	RunInProgress: {RunPending, RunCompleted},
	RunCompleted:  {},
}

var manifestTransitions = map[ManifestStatus][]ManifestStatus{
	ManifestActive:     {ManifestSuperseded, ManifestCompleted},
	ManifestSuperseded: {},
	ManifestCompleted:  {},
}

// CanTransition reports whether an order may move from one status to another.
// Staying in the same status is always allowed.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return s == to || contains(orderTransitions[s], to)
}

// CanTransition reports whether a run may move from one status to another.
// A completed run cannot change at all.
func (s RunStatus) CanTransition(to RunStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return s == to || contains(runTransitions[s], to)
}

// CanTransition reports whether a manifest may move from one status to another.
func (s ManifestStatus) CanTransition(to ManifestStatus) bool {
	return contains(manifestTransitions[s], to)
}

// TransitionError reports a status change the transition tables forbid.
type TransitionError struct {
	Kind string
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %q to %q", e.Kind, e.ID, e.From, e.To)
}

// SetStatus moves the order to status to. A zero status, as on a record
// being created, may take any valid status.
func (o *Order) SetStatus(to OrderStatus) error {
	if !to.Valid() || (o.Status != "" && !o.Status.CanTransition(to)) {
		return &TransitionError{Kind: "order", ID: o.ID, From: string(o.Status), To: string(to)}
	}
	o.Status = to
	return nil
}

// SetStatus moves the run to status to.
func (r *Run) SetStatus(to RunStatus) error {
	if !to.Valid() || (r.Status != "" && !r.Status.CanTransition(to)) {
		return &TransitionError{Kind: "run", ID: r.ID, From: string(r.Status), To: string(to)}
	}
	r.Status = to
	return nil
}

// SetStatus moves the manifest to status to. Unlike orders and runs, a
// manifest cannot be set to the status it already has.
func (m *Manifest) SetStatus(to ManifestStatus) error {
	if !to.Valid() || (m.Status != "" && !m.Status.CanTransition(to)) {
		return &TransitionError{Kind: "manifest", ID: m.ID, From: string(m.Status), To: string(to)}
	}
	m.Status = to
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Mobile       string    `json:"mobile"`
	Address      string    `json:"address"`
	Notes        string    `json:"notes"`
	OrderHistory []string  `json:"order_history"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Customer) EntityID() string { return c.ID }

func (c *Customer) Clone() *Customer {
	cp := *c
	cp.OrderHistory = append([]string(nil), c.OrderHistory...)
	return &cp
}

type Order struct {
	ID               string             `json:"id"`
	CustomerID       string             `json:"customer_id"`
	Bottles          bottles.Quantities `json:"bottles"`
	TotalBottleCount int                `json:"total_bottle_count"`
	PreferredDay     string             `json:"preferred_day"`
	DeliveryDate     string             `json:"delivery_date,omitempty"`
	InvoiceNumber    string             `json:"invoice_number,omitempty"`
	Notes            string             `json:"notes"`
	Status           OrderStatus        `json:"status"`
	RunID            string             `json:"run_id,omitempty"`
	Delivered        bool               `json:"delivered"`
	DeliveredAt      *time.Time         `json:"delivered_at,omitempty"`
	DeliveredRunID   string             `json:"delivered_run_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (o *Order) EntityID() string { return o.ID }

func (o *Order) Clone() *Order {
	cp := *o
	cp.Bottles = o.Bottles.Clone()
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}

// SetBottles stores the canonical form of q and keeps the total in step.
func (o *Order) SetBottles(q bottles.Quantities) {
	o.Bottles = q.Clone()
	o.TotalBottleCount = o.Bottles.Total()
}

// ClearDelivery resets every delivery field.
func (o *Order) ClearDelivery() {
	o.Delivered = false
	o.DeliveredAt = nil
	o.DeliveredRunID = ""
}

type Run struct {
	ID           string     `json:"id"`
	DeliveryDate string     `json:"delivery_date"`
	RunNumber    int        `json:"run_number"`
	OrderIDs     []string   `json:"order_ids"`
	ManifestID   string     `json:"manifest_id,omitempty"`
	Status       RunStatus  `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (r *Run) EntityID() string { return r.ID }

func (r *Run) Clone() *Run {
	cp := *r
	cp.OrderIDs = append([]string(nil), r.OrderIDs...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// HasOrder reports whether orderID is attached to the run.
func (r *Run) HasOrder(orderID string) bool {
	return contains(r.OrderIDs, orderID)
}

// AttachOrder appends orderID unless it is already attached.
func (r *Run) AttachOrder(orderID string) {
	if !r.HasOrder(orderID) {
		r.OrderIDs = append(r.OrderIDs, orderID)
	}
}

// DetachOrder removes orderID, keeping the order of the others.
func (r *Run) DetachOrder(orderID string) bool {
	for i, id := range r.OrderIDs {
		if id == orderID {
			r.OrderIDs = append(r.OrderIDs[:i:i], r.OrderIDs[i+1:]...)
			return true
		}
	}
	return false
}

// RunSequence is the highest run number ever issued for a delivery date.
// It outlives removed runs so their numbers are not handed out again.
type RunSequence struct {
	DeliveryDate string `json:"delivery_date"`
	Last         int    `json:"last"`
}

func (s *RunSequence) EntityID() string { return s.DeliveryDate }

func (s *RunSequence) Clone() *RunSequence {
	cp := *s
	return &cp
}

type Manifest struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	Version      int            `json:"version"`
	Status       ManifestStatus `json:"status"`
	GeneratedAt  time.Time      `json:"generated_at"`
	SupersededAt *time.Time     `json:"superseded_at,omitempty"`
	Snapshot     Snapshot       `json:"snapshot_data"`
}

func (m *Manifest) EntityID() string { return m.ID }

func (m *Manifest) Clone() *Manifest {
	cp := *m
	if m.SupersededAt != nil {
		t := *m.SupersededAt
		cp.SupersededAt = &t
	}
	cp.Snapshot = m.Snapshot.clone()
	return &cp
}

// Snapshot is the frozen manifest content. Its JSON keys are read by the
// external manifest renderer and must not change.
type Snapshot struct {
	RunID        string         `json:"runId"`
	DeliveryDate string         `json:"deliveryDate"`
	RunNumber    int            `json:"runNumber"`
	Stops        []Stop         `json:"stops"`
	TotalStops   int            `json:"totalStops"`
	TotalBottles int            `json:"totalBottles"`
	Breakdown    map[string]int `json:"breakdown"`
}

type Stop struct {
	StopNumber      int    `json:"stopNumber"`
	CustomerName    string `json:"customerName"`
	Address         string `json:"address"`
	Mobile          string `json:"mobile"`
	BottleBreakdown string `json:"bottleBreakdown"`
	Quantity        int    `json:"quantity"`
	Notes           string `json:"notes"`
	InvoiceNumber   string `json:"invoiceNumber"`
}

func (s Snapshot) clone() Snapshot {
	cp := s
	cp.Stops = append([]Stop(nil), s.Stops...)
	if s.Breakdown != nil {
		cp.Breakdown = make(map[string]int, len(s.Breakdown))
		for k, v := range s.Breakdown {
			cp.Breakdown[k] = v
		}
	}
	return cp
}
