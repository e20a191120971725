package handlers

import (
	"context"
	"net/http"
	"sort"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	storage string
}

// NewHealthHandler reports readiness from checks; storage names the backing
// store ("postgres" or "memory").
func NewHealthHandler(storage string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, storage: storage}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](r.Context()); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":  statusStr(status),
		"storage": h.storage,
		"checks":  results,
	})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}
