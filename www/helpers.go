package www

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cowaramupagencies/gas/dispatch"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	h.jsonStatus(w, code, map[string]string{"error": msg})
}

// statusFor maps a dispatcher error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case dispatch.CodeValidation, dispatch.CodeInvalidDate:
		return http.StatusBadRequest
	case dispatch.CodeNotFound:
		return http.StatusNotFound
	case dispatch.CodeCapacity, dispatch.CodeRunLocked, dispatch.CodeNoActiveManifest, dispatch.CodeIncompleteOrders:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// domainError writes err with its code. Validation problems are listed
// per field.
func (h *Handlers) domainError(w http.ResponseWriter, r *http.Request, err error) {
	code := dispatch.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		log.Printf("www: %s %s: %v", r.Method, r.URL.Path, err)
	}
	body := map[string]any{"error": err.Error(), "code": code}
	var ve *dispatch.ValidationError
	if errors.As(err, &ve) {
		body["problems"] = ve.Problems
	}
	h.jsonStatus(w, status, body)
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// dateParam returns the date query parameter, defaulting to today.
func (h *Handlers) dateParam(r *http.Request) string {
	if d := r.URL.Query().Get("date"); d != "" {
		return d
	}
	return h.engine.Dispatcher().Today()
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
