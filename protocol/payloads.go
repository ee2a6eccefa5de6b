package protocol

import "encoding/json"

// --- Inbound payloads ---

type Customer struct {
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
}

// OrderRequest books a new order. Bottles maps a bottle type to a count;
// RunID may be "auto", "none" or a run id.
type OrderRequest struct {
	RequestID     string         `json:"request_id"`
	Customer      Customer       `json:"customer"`
	Bottles       map[string]any `json:"bottles"`
	PreferredDay  string         `json:"preferred_day,omitempty"`
	DeliveryDate  string         `json:"delivery_date,omitempty"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	RunID         string         `json:"run_id,omitempty"`
}

// DeliveryReport is a driver marking a stop delivered or not delivered.
type DeliveryReport struct {
	OrderID   string `json:"order_id"`
	RunID     string `json:"run_id"`
	Delivered bool   `json:"delivered"`
}

// OrderReschedule moves an order off its run to another day.
type OrderReschedule struct {
	OrderID string `json:"order_id"`
	RunID   string `json:"run_id"`
	NewDate string `json:"new_date"`
}

// --- Outbound payloads ---

type OrderAck struct {
	RequestID string `json:"request_id,omitempty"`
	OrderID   string `json:"order_id"`
	RunID     string `json:"run_id,omitempty"`
	Status    string `json:"status"`
}

type OrderError struct {
	RequestID string `json:"request_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	ErrorCode string `json:"error_code"`
	Detail    string `json:"detail"`
}

// ManifestPublished carries a frozen manifest for the print renderer and
// driver handhelds.
type ManifestPublished struct {
	ManifestID   string          `json:"manifest_id"`
	RunID        string          `json:"run_id"`
	Version      int             `json:"version"`
	DeliveryDate string          `json:"delivery_date"`
	RunNumber    int             `json:"run_number"`
	SupersededID string          `json:"superseded_id,omitempty"`
	Snapshot     json.RawMessage `json:"snapshot"`
}

type RunCompleted struct {
	RunID        string `json:"run_id"`
	DeliveryDate string `json:"delivery_date"`
	RunNumber    int    `json:"run_number"`
	ManifestID   string `json:"manifest_id,omitempty"`
	CompletedAt  string `json:"completed_at"`
}

type OrderDelivered struct {
	OrderID     string `json:"order_id"`
	RunID       string `json:"run_id"`
	CustomerID  string `json:"customer_id,omitempty"`
	Delivered   bool   `json:"delivered"`
	DeliveredAt string `json:"delivered_at,omitempty"`
}
