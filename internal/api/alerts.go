package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldwatch/fieldwatch/internal/alerts"
)

// AlertHandler handles alert API requests
type AlertHandler struct {
	manager *alerts.Manager
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(manager *alerts.Manager) *AlertHandler {
	return &AlertHandler{manager: manager}
}

// Routes returns the alert routes
func (h *AlertHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Active)
	r.Post("/", h.Create)
	r.Get("/counts", h.Counts)
	r.Get("/history", h.History)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/acknowledge", h.Acknowledge)
	r.Post("/{id}/resolve", h.Resolve)
	r.Post("/{id}/escalate", h.Escalate)
	r.Post("/{id}/notes", h.AddNote)
	r.Post("/{id}/assign", h.Assign)

	return r
}

// Active lists active alerts, most urgent first
func (h *AlertHandler) Active(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := alerts.ActiveFilter{
		Priority:           alerts.Priority(q.Get("priority")),
		Category:           alerts.Category(q.Get("category")),
		UnacknowledgedOnly: q.Get("unacknowledged") == "true",
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		BadRequest(w, "unknown priority")
		return
	}

	list := h.manager.Active(filter)
	List(w, list, len(list), 0)
}

// Create creates a new alert
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var opts alerts.CreateOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if opts.Title == "" {
		BadRequest(w, "title is required")
		return
	}
	if opts.Priority != "" && !opts.Priority.Valid() {
		BadRequest(w, "unknown priority")
		return
	}

	Created(w, h.manager.Create(opts))
}

// Counts aggregates the active alert set
func (h *AlertHandler) Counts(w http.ResponseWriter, r *http.Request) {
	OK(w, h.manager.Counts())
}

// History lists resolved alerts, newest first
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	filter := alerts.HistoryFilter{
		Priority: alerts.Priority(q.Get("priority")),
		Category: alerts.Category(q.Get("category")),
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequest(w, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequest(w, "until must be RFC 3339")
			return
		}
		filter.Until = t
	}

	list := h.manager.History(limit, filter)
	List(w, list, len(list), limit)
}

// Get retrieves an active alert by ID
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, ok := h.manager.Get(id)
	if !ok {
		NotFound(w, "Alert not found")
		return
	}

	OK(w, a)
}

// actorRequest carries the acting operator and an optional note.
type actorRequest struct {
	Actor string `json:"actor"`
	Note  string `json:"note,omitempty"`
}

// Acknowledge acknowledges an active alert
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if req.Actor == "" {
		BadRequest(w, "actor is required")
		return
	}

	a := h.manager.Acknowledge(id, req.Actor, req.Note)
	if a == nil {
		NotFound(w, "Alert not found")
		return
	}

	OK(w, a)
}

// Resolve terminally resolves an active alert
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if req.Actor == "" {
		BadRequest(w, "actor is required")
		return
	}

	a := h.manager.Resolve(id, req.Actor, req.Note)
	if a == nil {
		NotFound(w, "Alert not found")
		return
	}

	OK(w, a)
}

// escalateRequest carries the optional escalation reason.
type escalateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Escalate raises an active alert to the next priority
func (h *AlertHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req escalateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "Invalid request body")
			return
		}
	}

	a := h.manager.Escalate(id, req.Reason)
	if a == nil {
		NotFound(w, "Alert not found")
		return
	}

	OK(w, a)
}

// AddNote appends a note to an active alert
func (h *AlertHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if req.Note == "" {
		BadRequest(w, "note is required")
		return
	}

	a := h.manager.AddNote(id, req.Actor, req.Note)
	if a == nil {
		NotFound(w, "Alert not found")
		return
	}

	OK(w, a)
}

// assignRequest names the assignee for an alert.
type assignRequest struct {
	Actor    string `json:"actor"`
	Assignee string `json:"assignee"`
}

// Assign sets the assignee of an active alert
func (h *AlertHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if req.Assignee == "" {
		BadRequest(w, "assignee is required")
		return
	}

	a := h.manager.Assign(id, req.Actor, req.Assignee)
	if a == nil {
		NotFound(w, "Alert not found")
		return
	}

	OK(w, a)
}
