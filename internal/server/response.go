package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"xsync-go/internal/xsync"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		status, raw = http.StatusInternalServerError, nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Code: status, Message: http.StatusText(status), Body: raw})
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, xsync.ErrValidation), errors.Is(err, xsync.ErrIntegrityMismatch),
		errors.Is(err, xsync.ErrPathViolation):
		return http.StatusBadRequest
	case errors.Is(err, xsync.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, xsync.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xsync.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Server-side failures get a
// generic message; client errors carry the reason.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", requestID(r.Context()), "error", err)
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Code: status, Message: msg})
}
