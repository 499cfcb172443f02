package httpapi

import (
	"net/http"

	"github.com/jobdeck/jobdeck/core/logger"
)

// handleHealthz is the liveness probe: the process is up.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz runs every registered dependency probe and reports the
// first failure. No probes registered means always ready.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for name, probe := range h.probes {
		if err := probe(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "readiness probe failed",
				logger.Component(name),
				logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "unavailable",
				"component": name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
