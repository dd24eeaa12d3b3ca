package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldwatch/fieldwatch/internal/orders"
)

// OrderHandler handles standing order API requests
type OrderHandler struct {
	matcher *orders.Matcher
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(matcher *orders.Matcher) *OrderHandler {
	return &OrderHandler{matcher: matcher}
}

// Routes returns the order routes
func (h *OrderHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/logs", h.Logs)
	r.Post("/check", h.Check)
	r.Post("/{id}/monitor", h.StartMonitor)
	r.Delete("/{id}/monitor", h.StopMonitor)

	return r
}

// List lists the configured standing orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.matcher.Orders()
	List(w, list, len(list), 0)
}

// Logs returns the most recent activity log entries
func (h *OrderHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	logs := h.matcher.Logs(limit)
	List(w, logs, len(logs), limit)
}

// CheckRequest names a trigger to match against the standing orders.
type CheckRequest struct {
	Trigger string         `json:"trigger"`
	Context map[string]any `json:"context,omitempty"`
}

// CheckResult reports the outcome of a manual trigger check.
type CheckResult struct {
	Matched bool          `json:"matched"`
	Order   *orders.Order `json:"order,omitempty"`
}

// Check runs a trigger name through the matcher
func (h *OrderHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if req.Trigger == "" {
		BadRequest(w, "trigger is required")
		return
	}

	order, matched := h.matcher.CheckTrigger(req.Trigger, req.Context)
	OK(w, CheckResult{Matched: matched, Order: order})
}

// StartMonitor starts the time-based monitor for a scheduled order
func (h *OrderHandler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.matcher.StartTimeBasedMonitor(id) {
		Conflict(w, "Order is unknown, not time-based, or already monitored")
		return
	}

	OK(w, map[string]string{"order_id": id, "monitor": "running"})
}

// StopMonitor cancels the monitor for an order
func (h *OrderHandler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.matcher.StopMonitor(id) {
		NotFound(w, "No running monitor for that order")
		return
	}

	NoContent(w)
}
