package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cowaramupagencies/gas/protocol"
	"github.com/cowaramupagencies/gas/store"
)

const actor = "system"

func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderEvent)
		e.audit("order", ev.Order.ID, ev.Action, ev.FromRunID, orderSummary(ev.Order))
		e.refreshRuns(ev.FromRunID, ev.Order.RunID)
	}, EventOrderCreated, EventOrderChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderDeletedEvent)
		e.audit("order", ev.OrderID, "deleted", ev.RunID, "")
		e.refreshRuns(ev.RunID)
	}, EventOrderDeleted)

	// Driver handhelds and the office get every delivery confirmation.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DeliveryToggledEvent)
		action := "undelivered"
		if ev.Delivered {
			action = "delivered"
		}
		e.audit("order", ev.Order.ID, action, "", ev.RunID)
		e.refreshRuns(ev.RunID)

		p := &protocol.OrderDelivered{
			OrderID:    ev.Order.ID,
			RunID:      ev.RunID,
			CustomerID: ev.Order.CustomerID,
			Delivered:  ev.Delivered,
		}
		if ev.Order.DeliveredAt != nil {
			p.DeliveredAt = ev.Order.DeliveredAt.UTC().Format(time.RFC3339)
		}
		e.publish(e.cfg.Messaging.OutboundTopic, protocol.TypeOrderDelivered, protocol.RoleOffice, p)
	}, EventDeliveryToggled)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderRescheduledEvent)
		e.audit("order", ev.Order.ID, "rescheduled", ev.FromDate, ev.Order.DeliveryDate)
		e.refreshRuns(ev.FromRunID)
	}, EventOrderRescheduled)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RunEvent)
		e.audit("run", ev.Run.ID, "created", "", runSummary(ev.Run))
		e.refreshRuns(ev.Run.ID)
	}, EventRunCreated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RunRemovedEvent)
		e.audit("run", ev.Run.ID, "removed", runSummary(ev.Run), fmt.Sprintf("%d orders released", len(ev.Detached)))
		e.runState.RefreshRun(context.Background(), ev.Run.ID, ev.Run.DeliveryDate)
	}, EventRunRemoved)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RunStatusChangedEvent)
		e.audit("run", ev.Run.ID, "status", string(ev.OldStatus), string(ev.Run.Status))
		e.refreshRuns(ev.Run.ID)
	}, EventRunStatusChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RunCompletedEvent)
		e.audit("run", ev.Run.ID, "completed", "", ev.ManifestID)
		p := &protocol.RunCompleted{
			RunID:        ev.Run.ID,
			DeliveryDate: ev.Run.DeliveryDate,
			RunNumber:    ev.Run.RunNumber,
			ManifestID:   ev.ManifestID,
		}
		if ev.Run.CompletedAt != nil {
			p.CompletedAt = ev.Run.CompletedAt.UTC().Format(time.RFC3339)
		}
		e.publish(e.cfg.Messaging.OutboundTopic, protocol.TypeRunCompleted, protocol.RoleOffice, p)
	}, EventRunCompleted)

	// The manifest renderer prints from the frozen snapshot alone.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ManifestGeneratedEvent)
		m := ev.Manifest
		e.audit("manifest", m.ID, "generated", ev.SupersededID, fmt.Sprintf("run %s v%d", m.RunID, m.Version))
		e.refreshRuns(m.RunID)

		snap, err := json.Marshal(m.Snapshot)
		if err != nil {
			log.Printf("engine: encode manifest %s snapshot: %v", m.ID, err)
			return
		}
		e.publish(e.cfg.Messaging.ManifestTopic, protocol.TypeManifestPublished, protocol.RoleDriver, &protocol.ManifestPublished{
			ManifestID:   m.ID,
			RunID:        m.RunID,
			Version:      m.Version,
			DeliveryDate: m.Snapshot.DeliveryDate,
			RunNumber:    m.Snapshot.RunNumber,
			SupersededID: ev.SupersededID,
			Snapshot:     snap,
		})
	}, EventManifestGenerated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(CustomerChangedEvent)
		action := "updated"
		if ev.Created {
			action = "created"
		}
		e.audit("customer", ev.Customer.ID, action, "", ev.Customer.Name)
	}, EventCustomerChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s", ev.Detail)
	}, EventMessagingConnected, EventMessagingDisconnected)
}

func (e *Engine) audit(entityType, entityID, action, oldValue, newValue string) {
	if err := e.db.AppendAudit(entityType, entityID, action, oldValue, newValue, actor); err != nil {
		log.Printf("engine: audit %s %s %s: %v", entityType, entityID, action, err)
	}
}

// refreshRuns rewrites the cached state of each named run, skipping blanks
// and repeats.
func (e *Engine) refreshRuns(runIDs ...string) {
	ctx := context.Background()
	seen := make(map[string]bool, len(runIDs))
	for _, id := range runIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		e.runState.RefreshRun(ctx, id, "")
	}
}

// publish queues an envelope in the outbox for the drainer to send.
func (e *Engine) publish(topic, msgType, dstRole string, payload any) {
	depot := e.cfg.Messaging.DepotID
	src := protocol.Address{Role: protocol.RoleDepot, Depot: depot}
	dst := protocol.Address{Role: dstRole, Depot: depot}
	env, err := protocol.NewEnvelope(msgType, src, dst, payload)
	if err != nil {
		log.Printf("engine: build %s: %v", msgType, err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("engine: encode %s: %v", msgType, err)
		return
	}
	if err := e.db.EnqueueOutbox(topic, data, msgType, depot); err != nil {
		log.Printf("engine: enqueue %s: %v", msgType, err)
	}
}

func orderSummary(o *store.Order) string {
	run := o.RunID
	if run == "" {
		run = "unassigned"
	}
	return fmt.Sprintf("%s %s %s", o.DeliveryDate, o.Bottles.Breakdown(), run)
}

func runSummary(r *store.Run) string {
	return fmt.Sprintf("%s run %d", r.DeliveryDate, r.RunNumber)
}
