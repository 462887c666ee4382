package handlers

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	workerEnabled bool
}

func NewHealthHandler(workerEnabled bool) *HealthHandler {
	return &HealthHandler{workerEnabled: workerEnabled}
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	worker := "listening"
	if !h.workerEnabled {
		worker = "disabled"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"worker":    worker,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
