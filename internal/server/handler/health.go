package handler

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const checkTimeout = 3 * time.Second

// CheckFunc checks one backend; a nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode    string
	dryRun  bool
	started time.Time
	checks  map[string]CheckFunc
}

// NewHealthHandler creates a HealthHandler reporting the running mode.
func NewHealthHandler(mode string, dryRun bool) *HealthHandler {
	return &HealthHandler{
		mode:    mode,
		dryRun:  dryRun,
		started: time.Now().UTC(),
		checks:  make(map[string]CheckFunc),
	}
}

// WithCheck adds a backend check run on every health request.
func (h *HealthHandler) WithCheck(name string, fn CheckFunc) *HealthHandler {
	h.checks[name] = fn
	return h
}

// HealthCheck reports liveness plus the state of each configured backend.
// Any failing backend turns the response into 503 "degraded".
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"mode":       h.mode,
		"dry_run":    h.dryRun,
		"checks":     results,
		"started_at": h.started.Format(time.RFC3339),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
