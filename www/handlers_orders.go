package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cowaramupagencies/gas/dispatch"
)

// apiListOrders lists orders for ?date=, or for ?from=&to= inclusive.
func (h *Handlers) apiListOrders(w http.ResponseWriter, r *http.Request) {
	d := h.engine.Dispatcher()
	q := r.URL.Query()
	var orders []dispatch.OrderView
	var err error
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		orders, err = d.OrdersInRange(r.Context(), from, to)
	} else {
		orders, err = d.OrdersByDate(r.Context(), h.dateParam(r))
	}
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, orders)
}

func (h *Handlers) apiUndeliveredOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.Dispatcher().UndeliveredOrders(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, orders)
}

func (h *Handlers) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in dispatch.OrderInput
	if !h.decode(w, r, &in) {
		return
	}
	o, err := h.engine.Dispatcher().CreateOrder(r.Context(), in)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, o)
}

func (h *Handlers) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.Dispatcher().GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, v)
}

func (h *Handlers) apiEditOrder(w http.ResponseWriter, r *http.Request) {
	var in dispatch.OrderInput
	if !h.decode(w, r, &in) {
		return
	}
	o, err := h.engine.Dispatcher().EditOrder(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, o)
}

func (h *Handlers) apiDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Dispatcher().DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	RunID string `json:"run_id"`
}

// apiAssignOrder moves an order onto run_id, or onto the first run with
// room when run_id is "auto".
func (h *Handlers) apiAssignOrder(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	d := h.engine.Dispatcher()
	id := chi.URLParam(r, "id")
	if req.RunID == dispatch.RunAuto {
		run, err := d.AutoAssignOrder(r.Context(), id)
		if err != nil {
			h.domainError(w, r, err)
			return
		}
		h.jsonOK(w, map[string]any{"assigned": run != nil, "run": run})
		return
	}
	if err := d.AssignOrderToRun(r.Context(), id, req.RunID); err != nil {
		h.domainError(w, r, err)
		return
	}
	h.writeOrder(w, r, id)
}

func (h *Handlers) apiDetachOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Dispatcher().DetachOrder(r.Context(), id); err != nil {
		h.domainError(w, r, err)
		return
	}
	h.writeOrder(w, r, id)
}

type dateRequest struct {
	Date string `json:"date"`
}

func (h *Handlers) apiSetDeliveryDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.engine.Dispatcher().SetDeliveryDate(r.Context(), chi.URLParam(r, "id"), req.Date)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, o)
}

type deliveryRequest struct {
	RunID     string `json:"run_id"`
	Delivered bool   `json:"delivered"`
}

func (h *Handlers) apiToggleDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.engine.Dispatcher().ToggleDelivery(r.Context(), chi.URLParam(r, "id"), req.RunID, req.Delivered)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, o)
}

type rescheduleRequest struct {
	RunID   string `json:"run_id"`
	NewDate string `json:"new_date"`
}

func (h *Handlers) apiRescheduleOrder(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.engine.Dispatcher().RescheduleOrder(r.Context(), chi.URLParam(r, "id"), req.RunID, req.NewDate)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, o)
}

func (h *Handlers) writeOrder(w http.ResponseWriter, r *http.Request, id string) {
	v, err := h.engine.Dispatcher().GetOrder(r.Context(), id)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, v)
}
