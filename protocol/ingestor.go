package protocol

import (
	"encoding/json"
	"log"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler defines callbacks for every message type.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	HandleOrderRequest(env *Envelope, p *OrderRequest)
	HandleDeliveryReport(env *Envelope, p *DeliveryReport)
	HandleOrderReschedule(env *Envelope, p *OrderReschedule)

	HandleOrderAck(env *Envelope, p *OrderAck)
	HandleOrderError(env *Envelope, p *OrderError)
	HandleManifestPublished(env *Envelope, p *ManifestPublished)
	HandleRunCompleted(env *Envelope, p *RunCompleted)
	HandleOrderDelivered(env *Envelope, p *OrderDelivered)
}

// Ingestor performs two-phase decode and dispatches to a MessageHandler.
type Ingestor struct {
	handler MessageHandler
	filter  FilterFunc
}

func NewIngestor(handler MessageHandler, filter FilterFunc) *Ingestor {
	return &Ingestor{handler: handler, filter: filter}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	// Phase 1: routing header only
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("protocol: header decode error: %v", err)
		return
	}
	if IsExpiredHeader(&hdr) {
		log.Printf("protocol: dropping expired message %s (type=%s)", hdr.ID, hdr.Type)
		return
	}
	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	// Phase 2: full envelope
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("protocol: envelope decode error: %v", err)
		return
	}

	switch env.Type {
	case TypeOrderRequest:
		decodeAndCall(ing.handler.HandleOrderRequest, &env)
	case TypeDeliveryReport:
		decodeAndCall(ing.handler.HandleDeliveryReport, &env)
	case TypeOrderReschedule:
		decodeAndCall(ing.handler.HandleOrderReschedule, &env)
	case TypeOrderAck:
		decodeAndCall(ing.handler.HandleOrderAck, &env)
	case TypeOrderError:
		decodeAndCall(ing.handler.HandleOrderError, &env)
	case TypeManifestPublished:
		decodeAndCall(ing.handler.HandleManifestPublished, &env)
	case TypeRunCompleted:
		decodeAndCall(ing.handler.HandleRunCompleted, &env)
	case TypeOrderDelivered:
		decodeAndCall(ing.handler.HandleOrderDelivered, &env)
	default:
		log.Printf("protocol: unknown message type: %s", env.Type)
	}
}

func decodeAndCall[T any](fn func(*Envelope, *T), env *Envelope) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Printf("protocol: payload decode error for %s: %v", env.Type, err)
		return
	}
	fn(env, &p)
}

// DepotFilter accepts messages addressed to depot, to every depot, or to no
// depot in particular.
func DepotFilter(depot string) FilterFunc {
	return func(hdr *RawHeader) bool {
		switch hdr.Dst.Depot {
		case depot, Broadcast, "":
			return true
		}
		return false
	}
}
