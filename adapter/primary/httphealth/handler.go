// Package httphealth exposes a liveness endpoint over HTTP, adapted from
// the teacher's primary/http.HealthHandler. Payment intake itself has no
// HTTP surface (spec §1 scopes the REST/gRPC transport out of the core;
// this is an ops endpoint, not a primary port).
package httphealth

import (
	"encoding/json"
	"net/http"

	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Response is the health endpoint's JSON body.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Handler handles GET /health requests.
type Handler struct {
	checks []secondary.HealthChecker
}

// NewHandler creates a health check handler with the given checkers.
func NewHandler(checks []secondary.HealthChecker) *Handler {
	return &Handler{checks: checks}
}

// ServeHTTP performs all health checks and reports the aggregate status.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))

	for _, check := range h.checks {
		if err := check.Check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks[check.Name()] = err.Error()
		} else {
			checks[check.Name()] = "ok"
		}
	}

	statusText := "healthy"
	if status != http.StatusOK {
		statusText = "unhealthy"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: statusText, Checks: checks})
}
