package messaging

import (
	"context"
	"log"
	"time"

	"github.com/cowaramupagencies/gas/dispatch"
	"github.com/cowaramupagencies/gas/protocol"
	"github.com/cowaramupagencies/gas/store"
)

// Enqueuer queues an encoded envelope for the outbox drainer.
type Enqueuer interface {
	EnqueueOutbox(topic string, payload []byte, msgType, depotID string) error
}

// Orders is the part of the dispatcher inbound messages drive.
type Orders interface {
	CreateOrder(ctx context.Context, in dispatch.OrderInput) (*store.Order, error)
	ToggleDelivery(ctx context.Context, orderID, runID string, delivered bool) (*store.Order, error)
	RescheduleOrder(ctx context.Context, orderID, runID, newDate string) (*store.Order, error)
}

// DepotHandler applies inbound messages to the dispatcher and queues an
// order.ack or order.error reply to the sender.
type DepotHandler struct {
	protocol.NoOpHandler

	orders  Orders
	outbox  Enqueuer
	depotID string
	topic   string
	timeout time.Duration
}

func NewDepotHandler(orders Orders, outbox Enqueuer, depotID, replyTopic string) *DepotHandler {
	return &DepotHandler{
		orders:  orders,
		outbox:  outbox,
		depotID: depotID,
		topic:   replyTopic,
		timeout: 10 * time.Second,
	}
}

func (h *DepotHandler) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.timeout)
}

func (h *DepotHandler) HandleOrderRequest(env *protocol.Envelope, p *protocol.OrderRequest) {
	ctx, cancel := h.opContext()
	defer cancel()

	o, err := h.orders.CreateOrder(ctx, dispatch.OrderInput{
		Customer: dispatch.CustomerInput{
			Name:    p.Customer.Name,
			Mobile:  p.Customer.Mobile,
			Address: p.Customer.Address,
		},
		Bottles:       p.Bottles,
		PreferredDay:  p.PreferredDay,
		Notes:         p.Notes,
		DeliveryDate:  p.DeliveryDate,
		InvoiceNumber: p.InvoiceNumber,
		RunID:         p.RunID,
	})
	if err != nil {
		log.Printf("messaging: order request %s from %s rejected: %v", p.RequestID, env.Src.Role, err)
		h.replyError(env, p.RequestID, "", err)
		return
	}
	h.replyAck(env, p.RequestID, o)
}

func (h *DepotHandler) HandleDeliveryReport(env *protocol.Envelope, p *protocol.DeliveryReport) {
	ctx, cancel := h.opContext()
	defer cancel()

	o, err := h.orders.ToggleDelivery(ctx, p.OrderID, p.RunID, p.Delivered)
	if err != nil {
		log.Printf("messaging: delivery report for order %s rejected: %v", p.OrderID, err)
		h.replyError(env, "", p.OrderID, err)
		return
	}
	h.replyAck(env, "", o)
}

func (h *DepotHandler) HandleOrderReschedule(env *protocol.Envelope, p *protocol.OrderReschedule) {
	ctx, cancel := h.opContext()
	defer cancel()

	o, err := h.orders.RescheduleOrder(ctx, p.OrderID, p.RunID, p.NewDate)
	if err != nil {
		log.Printf("messaging: reschedule of order %s rejected: %v", p.OrderID, err)
		h.replyError(env, "", p.OrderID, err)
		return
	}
	h.replyAck(env, "", o)
}

func (h *DepotHandler) replyAck(env *protocol.Envelope, requestID string, o *store.Order) {
	h.reply(env, protocol.TypeOrderAck, &protocol.OrderAck{
		RequestID: requestID,
		OrderID:   o.ID,
		RunID:     o.RunID,
		Status:    string(o.Status),
	})
}

func (h *DepotHandler) replyError(env *protocol.Envelope, requestID, orderID string, err error) {
	h.reply(env, protocol.TypeOrderError, &protocol.OrderError{
		RequestID: requestID,
		OrderID:   orderID,
		ErrorCode: dispatch.ErrorCode(err),
		Detail:    err.Error(),
	})
}

func (h *DepotHandler) reply(env *protocol.Envelope, msgType string, payload any) {
	src := protocol.Address{Role: protocol.RoleDepot, Depot: h.depotID}
	out, err := protocol.NewReply(msgType, src, env.Src, env.ID, payload)
	if err != nil {
		log.Printf("messaging: build %s reply: %v", msgType, err)
		return
	}
	data, err := out.Encode()
	if err != nil {
		log.Printf("messaging: encode %s reply: %v", msgType, err)
		return
	}
	if err := h.outbox.EnqueueOutbox(h.topic, data, msgType, h.depotID); err != nil {
		log.Printf("messaging: enqueue %s reply: %v", msgType, err)
	}
}

var _ protocol.MessageHandler = (*DepotHandler)(nil)
