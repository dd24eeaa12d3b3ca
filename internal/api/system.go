package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldwatch/fieldwatch/internal/logging"
)

// HealthChecker reports component liveness for the health endpoint.
type HealthChecker interface {
	Healthy() bool
}

// SystemHandler handles health, stats and log tail requests
type SystemHandler struct {
	name      string
	version   string
	startedAt time.Time
	hub       *Hub
	checks    map[string]HealthChecker
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(name, version string, hub *Hub) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		startedAt: time.Now(),
		hub:       hub,
		checks:    make(map[string]HealthChecker),
	}
}

// AddCheck registers a named component for the health endpoint.
func (h *SystemHandler) AddCheck(name string, check HealthChecker) {
	h.checks[name] = check
}

// Routes returns the system routes
func (h *SystemHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Get("/logs", h.Logs)

	return r
}

// Health reports process and component liveness
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if check.Healthy() {
			components[name] = "ok"
		} else {
			components[name] = "down"
			healthy = false
		}
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	JSON(w, status, map[string]any{
		"name":       h.name,
		"version":    h.version,
		"status":     state,
		"uptime_s":   int(time.Since(h.startedAt).Seconds()),
		"ws_clients": h.hub.ClientCount(),
		"components": components,
	})
}

// Logs returns the most recent captured log entries
func (h *SystemHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := logging.GetLogBuffer().GetRecent(limit)
	List(w, entries, len(entries), limit)
}
