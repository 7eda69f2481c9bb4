package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// readyProbeTimeout bounds each dependency probe so a stuck dependency
// cannot hang the readiness endpoint past an orchestrator's deadline.
const readyProbeTimeout = 2 * time.Second

// ReadyCheck is one named dependency probe consulted by /readyz.
type ReadyCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
//
// Liveness only proves the process is running. Readiness runs every
// registered dependency probe and reports per-dependency status, so an
// orchestrator keeps traffic away while the database or the blob store
// is down even though the process itself is fine.
type HealthHandler struct {
	checks []ReadyCheck
	logger *slog.Logger
}

// NewHealthHandler creates a health handler over the given dependency
// probes. With no probes registered readiness always fails: a server
// that checks nothing has no business reporting ready.
func NewHealthHandler(logger *slog.Logger, checks ...ReadyCheck) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.liveness)
	mux.HandleFunc("GET /readyz", h.readiness)
}

func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readinessResponse reports overall and per-dependency readiness.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	resp := readinessResponse{
		Status: "ready",
		Checks: make(map[string]string, len(h.checks)),
	}
	if len(h.checks) == 0 {
		resp.Status = "unavailable"
		resp.Checks["configuration"] = "no dependency probes registered"
	}

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		err := check.Probe(ctx)
		cancel()

		if err != nil {
			h.logger.Error("readiness probe failed", "check", check.Name, "error", err)
			resp.Status = "unavailable"
			resp.Checks[check.Name] = err.Error()
			continue
		}
		resp.Checks[check.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
