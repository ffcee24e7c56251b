package engine

import (
	"net/http"
	"time"

	"github.com/nexiath/sovera/pkg/health"
)

func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall := e.health.GetOverallStatus()

	checks := map[string]any{}
	for _, check := range e.health.GetAllChecks() {
		checks[check.Name] = map[string]any{
			"status":       check.Status,
			"message":      check.Message,
			"last_checked": check.LastChecked.UTC().Format(time.RFC3339),
		}
	}

	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":       overall,
		"checks":       checks,
		"last_healthy": e.health.GetLastHealthyTime().UTC().Format(time.RFC3339),
	})
}
