package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldwatch/fieldwatch/internal/geo"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

// GeofenceHandler handles geofence API requests
type GeofenceHandler struct {
	registry *sensors.Registry
}

// NewGeofenceHandler creates a new geofence handler
func NewGeofenceHandler(registry *sensors.Registry) *GeofenceHandler {
	return &GeofenceHandler{registry: registry}
}

// Routes returns the geofence routes
func (h *GeofenceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	return r
}

// List lists all registered geofences
func (h *GeofenceHandler) List(w http.ResponseWriter, r *http.Request) {
	fences := h.registry.Geofences()
	List(w, fences, len(fences), 0)
}

// Create registers a new geofence
func (h *GeofenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var fence geo.Geofence
	if err := json.NewDecoder(r.Body).Decode(&fence); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	switch fence.Type {
	case geo.FenceCircle:
		if fence.RadiusM <= 0 {
			BadRequest(w, "circle fences need a positive radius_m")
			return
		}
	case geo.FencePolygon:
		if len(fence.Vertices) < 3 {
			BadRequest(w, "polygon fences need at least 3 vertices")
			return
		}
	default:
		BadRequest(w, "type must be circle or polygon")
		return
	}

	fence.ID = h.registry.AddGeofence(fence)
	Created(w, fence)
}

// WatchlistHandler handles watchlist API requests
type WatchlistHandler struct {
	registry *sensors.Registry
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(registry *sensors.Registry) *WatchlistHandler {
	return &WatchlistHandler{registry: registry}
}

// Routes returns the watchlist routes
func (h *WatchlistHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{kind}", h.List)
	r.Post("/{kind}", h.Add)
	r.Delete("/{kind}/{id}", h.Remove)

	return r
}

var watchlistKinds = map[sensors.WatchlistKind]bool{
	sensors.WatchlistFace:   true,
	sensors.WatchlistPlate:  true,
	sensors.WatchlistDevice: true,
}

func parseKind(r *http.Request) (sensors.WatchlistKind, bool) {
	kind := sensors.WatchlistKind(chi.URLParam(r, "kind"))
	return kind, watchlistKinds[kind]
}

// List returns the entries under one watchlist kind
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r)
	if !ok {
		BadRequest(w, "kind must be face, plate or device")
		return
	}

	entries := h.registry.Watchlist(kind)
	List(w, entries, len(entries), 0)
}

// WatchlistEntry is the add-entry request body.
type WatchlistEntry struct {
	ID string `json:"id"`
}

// Add records an identifier under a watchlist kind
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r)
	if !ok {
		BadRequest(w, "kind must be face, plate or device")
		return
	}

	var entry WatchlistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if entry.ID == "" {
		BadRequest(w, "id is required")
		return
	}

	h.registry.AddToWatchlist(kind, entry.ID)
	Created(w, entry)
}

// Remove drops an identifier from a watchlist kind
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r)
	if !ok {
		BadRequest(w, "kind must be face, plate or device")
		return
	}

	if !h.registry.RemoveFromWatchlist(kind, chi.URLParam(r, "id")) {
		NotFound(w, "Watchlist entry not found")
		return
	}

	NoContent(w)
}
