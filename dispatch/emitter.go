package dispatch

import "github.com/cowaramupagencies/gas/store"

// Emitter is the interface adapters must satisfy to bridge dispatch events to the engine.
// Every call happens after the change has been committed.
type Emitter interface {
	EmitOrderCreated(order *store.Order)
	EmitOrderChanged(order *store.Order, fromRunID, action string)
	EmitOrderDeleted(orderID, customerID, runID string)
	EmitDeliveryToggled(order *store.Order, runID string, delivered bool)
	EmitOrderRescheduled(order *store.Order, fromRunID, fromDate string)
	EmitRunCreated(run *store.Run)
	EmitRunRemoved(run *store.Run, detached []string)
	EmitRunStatusChanged(run *store.Run, from store.RunStatus)
	EmitRunCompleted(run *store.Run, manifestID string)
	EmitManifestGenerated(m *store.Manifest, supersededID string)
	EmitCustomerChanged(c *store.Customer, created bool)
}

type nopEmitter struct{}

func (nopEmitter) EmitOrderCreated(*store.Order)                     {}
func (nopEmitter) EmitOrderChanged(*store.Order, string, string)     {}
func (nopEmitter) EmitOrderDeleted(string, string, string)           {}
func (nopEmitter) EmitDeliveryToggled(*store.Order, string, bool)    {}
func (nopEmitter) EmitOrderRescheduled(*store.Order, string, string) {}
func (nopEmitter) EmitRunCreated(*store.Run)                         {}
func (nopEmitter) EmitRunRemoved(*store.Run, []string)               {}
func (nopEmitter) EmitRunStatusChanged(*store.Run, store.RunStatus)  {}
func (nopEmitter) EmitRunCompleted(*store.Run, string)               {}
func (nopEmitter) EmitManifestGenerated(*store.Manifest, string)     {}
func (nopEmitter) EmitCustomerChanged(*store.Customer, bool)         {}
