// Package httputil provides JSON request/response helpers shared by the
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response, mapping apperr.Error onto its
// status and code. Other errors become a 500.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := apperr.From(err)
	WriteJSON(w, apiErr.Status, map[string]interface{}{"error": apiErr})
}

// DecodeJSON decodes a request body into dst. On failure it writes a 400
// and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		WriteError(w, apperr.BadRequest("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// BadRequest writes a 400 with a message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, apperr.BadRequest(message))
}

// NotFound writes a 404 with a message.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, apperr.NotFound(message))
}

// InternalError writes a 500 with a message.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, apperr.Internal(message))
}
