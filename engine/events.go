package engine

import "github.com/cowaramupagencies/gas/store"

const (
	EventOrderCreated EventType = iota + 1
	EventOrderChanged
	EventOrderDeleted
	EventDeliveryToggled
	EventOrderRescheduled
	EventRunCreated
	EventRunRemoved
	EventRunStatusChanged
	EventRunCompleted
	EventManifestGenerated
	EventCustomerChanged
	EventMessagingConnected
	EventMessagingDisconnected
)

var eventNames = map[EventType]string{
	EventOrderCreated:          "order-created",
	EventOrderChanged:          "order-changed",
	EventOrderDeleted:          "order-deleted",
	EventDeliveryToggled:       "delivery-toggled",
	EventOrderRescheduled:      "order-rescheduled",
	EventRunCreated:            "run-created",
	EventRunRemoved:            "run-removed",
	EventRunStatusChanged:      "run-status",
	EventRunCompleted:          "run-completed",
	EventManifestGenerated:     "manifest-generated",
	EventCustomerChanged:       "customer-changed",
	EventMessagingConnected:    "messaging-connected",
	EventMessagingDisconnected: "messaging-disconnected",
}

// String names the event as it appears on the SSE stream.
func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// --- Event payloads ---

type OrderEvent struct {
	Order     *store.Order `json:"order"`
	FromRunID string       `json:"from_run_id,omitempty"`
	Action    string       `json:"action"`
}

type OrderDeletedEvent struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	RunID      string `json:"run_id,omitempty"`
}

type DeliveryToggledEvent struct {
	Order     *store.Order `json:"order"`
	RunID     string       `json:"run_id"`
	Delivered bool         `json:"delivered"`
}

type OrderRescheduledEvent struct {
	Order     *store.Order `json:"order"`
	FromRunID string       `json:"from_run_id"`
	FromDate  string       `json:"from_date"`
}

type RunEvent struct {
	Run *store.Run `json:"run"`
}

type RunRemovedEvent struct {
	Run      *store.Run `json:"run"`
	Detached []string   `json:"detached"`
}

type RunStatusChangedEvent struct {
	Run       *store.Run      `json:"run"`
	OldStatus store.RunStatus `json:"old_status"`
}

type RunCompletedEvent struct {
	Run        *store.Run `json:"run"`
	ManifestID string     `json:"manifest_id,omitempty"`
}

type ManifestGeneratedEvent struct {
	Manifest     *store.Manifest `json:"manifest"`
	SupersededID string          `json:"superseded_id,omitempty"`
}

type CustomerChangedEvent struct {
	Customer *store.Customer `json:"customer"`
	Created  bool            `json:"created"`
}

type ConnectionEvent struct {
	Detail string `json:"detail"`
}
