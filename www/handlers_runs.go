package www

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handlers) apiRunsForDate(w http.ResponseWriter, r *http.Request) {
	runs, err := h.engine.Dispatcher().RunsForDate(r.Context(), h.dateParam(r))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, runs)
}

func (h *Handlers) apiGeneratedRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.engine.Dispatcher().GeneratedRuns(r.Context())
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, runs)
}

// apiRunCapacities feeds the run picker: ?date=&exclude=<order id>&candidate=<counted>.
func (h *Handlers) apiRunCapacities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caps, err := h.engine.Dispatcher().RunCapacities(r.Context(), h.dateParam(r), q.Get("exclude"), intParam(r, "candidate", 1))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, caps)
}

func (h *Handlers) apiCreateRun(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if !h.decode(w, r, &req) {
		return
	}
	run, err := h.engine.Dispatcher().CreateRun(r.Context(), req.Date)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	log.Printf("www: %s created run %d for %s", h.getUsername(r), run.RunNumber, run.DeliveryDate)
	h.jsonStatus(w, http.StatusCreated, run)
}

func (h *Handlers) apiGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := h.engine.Dispatcher().GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, detail)
}

func (h *Handlers) apiRemoveRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Dispatcher().RemoveRun(r.Context(), id); err != nil {
		h.domainError(w, r, err)
		return
	}
	log.Printf("www: %s removed run %s", h.getUsername(r), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) apiRunState(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.RunState().GetRunState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, s)
}

func (h *Handlers) apiGenerateManifest(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.Dispatcher().GenerateManifest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, m)
}

func (h *Handlers) apiListRunManifests(w http.ResponseWriter, r *http.Request) {
	ms, err := h.engine.Dispatcher().ListRunManifests(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, ms)
}

type completeRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handlers) apiCompleteRun(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !h.decode(w, r, &req) {
		return
	}
	run, err := h.engine.Dispatcher().MarkRunComplete(r.Context(), chi.URLParam(r, "id"), req.Confirm)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	log.Printf("www: %s completed run %d for %s", h.getUsername(r), run.RunNumber, run.DeliveryDate)
	h.jsonOK(w, run)
}

func (h *Handlers) apiGetManifest(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.Dispatcher().GetManifest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonOK(w, m)
}
