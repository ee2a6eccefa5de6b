package protocol

// Message types.
const (
	// Inbound, published by drivers and office integrations.
	TypeOrderRequest    = "order.request"
	TypeDeliveryReport  = "delivery.report"
	TypeOrderReschedule = "order.reschedule"

	// Outbound, published by the depot.
	TypeOrderAck          = "order.ack"
	TypeOrderError        = "order.error"
	TypeManifestPublished = "manifest.published"
	TypeRunCompleted      = "run.completed"
	TypeOrderDelivered    = "order.delivered"
)

// Roles for Address.Role.
const (
	RoleDepot  = "depot"
	RoleDriver = "driver"
	RoleOffice = "office"
)

// Broadcast addresses every depot.
const Broadcast = "*"

const Version = 1
