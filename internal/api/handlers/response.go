package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "File not found"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, core.ErrQueueDisabled):
		return http.StatusServiceUnavailable, "Ingestion pipeline is disabled"
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
