package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

// SensorHandler handles sensor API requests
type SensorHandler struct {
	registry *sensors.Registry
}

// NewSensorHandler creates a new sensor handler
func NewSensorHandler(registry *sensors.Registry) *SensorHandler {
	return &SensorHandler{registry: registry}
}

// Routes returns the sensor routes
func (h *SensorHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Register)
	r.Get("/counts", h.Counts)
	r.Get("/latest", h.Latest)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Unregister)
	r.Post("/{id}/data", h.Ingest)
	r.Get("/{id}/data", h.Buffer)
	r.Post("/{id}/offline", h.Offline)

	return r
}

// List lists sensors, optionally filtered by type, status and zone
func (h *SensorHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := sensors.Filter{
		Type:   sensors.Type(r.URL.Query().Get("type")),
		Status: sensors.Status(r.URL.Query().Get("status")),
		Zone:   r.URL.Query().Get("zone"),
	}

	list := h.registry.List(filter)
	List(w, list, len(list), 0)
}

// Register registers a new sensor
func (h *SensorHandler) Register(w http.ResponseWriter, r *http.Request) {
	var spec sensors.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	if errs := NewSensorValidator().Validate(spec); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	s, err := h.registry.Register(spec)
	if err != nil {
		if errors.Is(err, sensors.ErrUnknownSensorType) {
			BadRequest(w, err.Error())
			return
		}
		InternalError(w, err.Error())
		return
	}

	Created(w, s)
}

// Counts returns sensor counts partitioned by type and status
func (h *SensorHandler) Counts(w http.ResponseWriter, r *http.Request) {
	OK(w, h.registry.GetCounts())
}

// Latest returns the most recent reading per sensor
func (h *SensorHandler) Latest(w http.ResponseWriter, r *http.Request) {
	OK(w, h.registry.GetLatestData())
}

// Get retrieves a sensor by ID
func (h *SensorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, ok := h.registry.Get(id)
	if !ok {
		NotFound(w, "Sensor not found")
		return
	}

	OK(w, s)
}

// Unregister removes a sensor
func (h *SensorHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.registry.Unregister(id) {
		NotFound(w, "Sensor not found")
		return
	}

	NoContent(w)
}

// IngestResponse reports the triggers produced by a reading.
type IngestResponse struct {
	SensorID string            `json:"sensor_id"`
	Triggers []sensors.Trigger `json:"triggers"`
}

// Ingest accepts one reading for a sensor and returns any triggers it fired
func (h *SensorHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var reading sensors.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	triggers, err := h.registry.Ingest(id, reading)
	if err != nil {
		if errors.Is(err, sensors.ErrUnknownSensor) {
			NotFound(w, "Sensor not found")
			return
		}
		InternalError(w, err.Error())
		return
	}

	if triggers == nil {
		triggers = []sensors.Trigger{}
	}
	OK(w, IngestResponse{SensorID: id, Triggers: triggers})
}

// Buffer returns the retained readings for a sensor, oldest first
func (h *SensorHandler) Buffer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := h.registry.Get(id); !ok {
		NotFound(w, "Sensor not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	readings := h.registry.GetBuffer(id, limit)
	if readings == nil {
		readings = []sensors.Reading{}
	}
	OK(w, readings)
}

// Offline marks a sensor offline
func (h *SensorHandler) Offline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.registry.MarkOffline(id) {
		NotFound(w, "Sensor not found")
		return
	}

	s, _ := h.registry.Get(id)
	OK(w, s)
}
