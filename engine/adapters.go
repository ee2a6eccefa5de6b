package engine

import (
	"github.com/cowaramupagencies/gas/dispatch"
	"github.com/cowaramupagencies/gas/store"
)

// dispatchEmitter bridges the dispatch package's emitter interface to the EventBus.
type dispatchEmitter struct {
	bus *EventBus
}

var _ dispatch.Emitter = (*dispatchEmitter)(nil)

func (e *dispatchEmitter) EmitOrderCreated(o *store.Order) {
	e.bus.Emit(Event{Type: EventOrderCreated, Payload: OrderEvent{Order: o, Action: "created"}})
}

func (e *dispatchEmitter) EmitOrderChanged(o *store.Order, fromRunID, action string) {
	e.bus.Emit(Event{Type: EventOrderChanged, Payload: OrderEvent{Order: o, FromRunID: fromRunID, Action: action}})
}

func (e *dispatchEmitter) EmitOrderDeleted(orderID, customerID, runID string) {
	e.bus.Emit(Event{Type: EventOrderDeleted, Payload: OrderDeletedEvent{
		OrderID:    orderID,
		CustomerID: customerID,
		RunID:      runID,
	}})
}

func (e *dispatchEmitter) EmitDeliveryToggled(o *store.Order, runID string, delivered bool) {
	e.bus.Emit(Event{Type: EventDeliveryToggled, Payload: DeliveryToggledEvent{
		Order:     o,
		RunID:     runID,
		Delivered: delivered,
	}})
}

func (e *dispatchEmitter) EmitOrderRescheduled(o *store.Order, fromRunID, fromDate string) {
	e.bus.Emit(Event{Type: EventOrderRescheduled, Payload: OrderRescheduledEvent{
		Order:     o,
		FromRunID: fromRunID,
		FromDate:  fromDate,
	}})
}

func (e *dispatchEmitter) EmitRunCreated(r *store.Run) {
	e.bus.Emit(Event{Type: EventRunCreated, Payload: RunEvent{Run: r}})
}

func (e *dispatchEmitter) EmitRunRemoved(r *store.Run, detached []string) {
	e.bus.Emit(Event{Type: EventRunRemoved, Payload: RunRemovedEvent{Run: r, Detached: detached}})
}

func (e *dispatchEmitter) EmitRunStatusChanged(r *store.Run, from store.RunStatus) {
	e.bus.Emit(Event{Type: EventRunStatusChanged, Payload: RunStatusChangedEvent{Run: r, OldStatus: from}})
}

func (e *dispatchEmitter) EmitRunCompleted(r *store.Run, manifestID string) {
	e.bus.Emit(Event{Type: EventRunCompleted, Payload: RunCompletedEvent{Run: r, ManifestID: manifestID}})
}

func (e *dispatchEmitter) EmitManifestGenerated(m *store.Manifest, supersededID string) {
	e.bus.Emit(Event{Type: EventManifestGenerated, Payload: ManifestGeneratedEvent{
		Manifest:     m,
		SupersededID: supersededID,
	}})
}

func (e *dispatchEmitter) EmitCustomerChanged(c *store.Customer, created bool) {
	e.bus.Emit(Event{Type: EventCustomerChanged, Payload: CustomerChangedEvent{Customer: c, Created: created}})
}
