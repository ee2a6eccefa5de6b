package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handlers) apiWeekOverview(w http.ResponseWriter, r *http.Request) {
	days, err := h.engine.Dispatcher().WeekOverview(r.Context(), h.dateParam(r))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, days)
}

func (h *Handlers) apiStockSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.engine.Dispatcher().StockSummary(r.Context())
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, sum)
}

func (h *Handlers) apiSearchCustomers(w http.ResponseWriter, r *http.Request) {
	found, err := h.customers.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, found)
}

func (h *Handlers) apiGetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, c)
}

func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	db := h.engine.DB()
	if typ, id := q.Get("entity_type"), q.Get("entity_id"); typ != "" && id != "" {
		entries, err := db.ListEntityAudit(typ, id)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.jsonOK(w, entries)
		return
	}
	entries, err := db.ListAuditLog(intParam(r, "limit", 100))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	h.jsonOK(w, map[string]any{
		"status":      "ok",
		"database":    h.engine.DB().Driver(),
		"messaging":   h.engine.MessagingConnected(),
		"backend":     cfg.Messaging.Backend,
		"sse_clients": h.eventHub.ClientCount(),
		"capacity":    cfg.Capacity,
	})
}

func (h *Handlers) apiReconnectMessaging(w http.ResponseWriter, r *http.Request) {
	h.engine.ReconfigureMessaging()
	h.jsonOK(w, map[string]bool{"connected": h.engine.MessagingConnected()})
}
