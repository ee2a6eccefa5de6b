package protocol

// NoOpHandler implements MessageHandler with no-op methods.
type NoOpHandler struct{}

func (NoOpHandler) HandleOrderRequest(*Envelope, *OrderRequest)           {}
func (NoOpHandler) HandleDeliveryReport(*Envelope, *DeliveryReport)       {}
func (NoOpHandler) HandleOrderReschedule(*Envelope, *OrderReschedule)     {}
func (NoOpHandler) HandleOrderAck(*Envelope, *OrderAck)                   {}
func (NoOpHandler) HandleOrderError(*Envelope, *OrderError)               {}
func (NoOpHandler) HandleManifestPublished(*Envelope, *ManifestPublished) {}
func (NoOpHandler) HandleRunCompleted(*Envelope, *RunCompleted)           {}
func (NoOpHandler) HandleOrderDelivered(*Envelope, *OrderDelivered)       {}

var _ MessageHandler = NoOpHandler{}
