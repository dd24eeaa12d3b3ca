package sensors

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldwatch/fieldwatch/internal/bus"
	"github.com/fieldwatch/fieldwatch/internal/geo"
)

// Errors returned by the registry. Unknown-id lookups on read paths are
// soft (value, bool) returns instead; these two indicate caller
// programming errors and fail loudly.
var (
	ErrUnknownSensorType = &Error{Code: "UNKNOWN_SENSOR_TYPE", Message: "Unknown sensor type"}
	ErrUnknownSensor     = &Error{Code: "UNKNOWN_SENSOR", Message: "Sensor not registered"}
)

// Error represents a registry error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// DataPoint is the payload of sensor data events.
type DataPoint struct {
	SensorID   string  `json:"sensor_id"`
	SensorName string  `json:"sensor_name"`
	SensorType Type    `json:"sensor_type"`
	Zone       string  `json:"zone,omitempty"`
	Reading    Reading `json:"reading"`
}

// Registry owns sensor identities, reading buffers, geofences and
// watchlists. All state is guarded by one mutex held for the duration
// of each operation; no operation blocks on I/O.
type Registry struct {
	mu         sync.RWMutex
	sensors    map[string]*Sensor
	buffers    map[string]*readingRing
	fences     map[string]*geo.Geofence
	watchlists map[WatchlistKind]map[string]struct{}

	bufferCap int
	emitter   bus.Emitter
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. bufferCap bounds the per-sensor
// reading ring; values below 1 fall back to 100.
func NewRegistry(bufferCap int, emitter bus.Emitter) *Registry {
	if bufferCap < 1 {
		bufferCap = 100
	}
	return &Registry{
		sensors:    make(map[string]*Sensor),
		buffers:    make(map[string]*readingRing),
		fences:     make(map[string]*geo.Geofence),
		watchlists: make(map[WatchlistKind]map[string]struct{}),
		bufferCap:  bufferCap,
		emitter:    emitter,
		logger:     slog.Default().With("component", "sensor_registry"),
	}
}

// Spec describes a sensor to register.
type Spec struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Type     Type           `json:"type"`
	Location *geo.Point     `json:"location,omitempty"`
	Zone     string         `json:"zone,omitempty"`
	Config   Config         `json:"config"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Register validates the spec, assigns identity if missing, and adds the
// sensor with status online and an empty buffer.
func (r *Registry) Register(spec Spec) (*Sensor, error) {
	if !knownTypes[spec.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSensorType, spec.Type)
	}

	r.mu.Lock()
	id := spec.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := &Sensor{
		ID:        id,
		Name:      spec.Name,
		Type:      spec.Type,
		Location:  spec.Location,
		Zone:      spec.Zone,
		Config:    spec.Config,
		Metadata:  spec.Metadata,
		Status:    StatusOnline,
		CreatedAt: time.Now(),
	}
	r.sensors[id] = s
	r.buffers[id] = newReadingRing(r.bufferCap)
	snapshot := *s
	r.mu.Unlock()

	r.logger.Info("Sensor registered", "id", id, "name", s.Name, "type", s.Type)
	r.emitter.Emit(bus.SubjectSensorRegistered, snapshot)
	return &snapshot, nil
}

// Unregister removes a sensor and its buffer. Returns false for an
// unknown id without emitting anything.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	s, ok := r.sensors[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	snapshot := *s
	delete(r.sensors, id)
	delete(r.buffers, id)
	r.mu.Unlock()

	r.logger.Info("Sensor unregistered", "id", id)
	r.emitter.Emit(bus.SubjectSensorUnregistered, snapshot)
	return true
}

// Ingest records a reading for a registered sensor, evaluates every rule
// applicable to the sensor's type, and returns the triggers produced.
// A generic data event and a type-scoped data event are emitted whether
// or not any trigger fired; one trigger event is emitted per satisfied
// rule, all referencing the same reading.
func (r *Registry) Ingest(id string, reading Reading) ([]Trigger, error) {
	r.mu.Lock()
	s, ok := r.sensors[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, id)
	}

	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}

	now := time.Now()
	s.Status = StatusOnline
	s.LastSeen = &now
	s.LastData = &reading
	s.Stats.Readings++
	r.buffers[id].Append(reading)

	triggers := r.evaluate(s, reading)
	s.Stats.Triggers += len(triggers)

	point := DataPoint{
		SensorID:   s.ID,
		SensorName: s.Name,
		SensorType: s.Type,
		Zone:       s.Zone,
		Reading:    reading,
	}
	r.mu.Unlock()

	r.emitter.Emit(bus.SubjectSensorData, point)
	r.emitter.Emit(bus.SubjectSensorData+"."+string(point.SensorType), point)
	for _, trig := range triggers {
		r.logger.Info("Trigger", "name", trig.Name, "sensor", trig.SensorID, "type", trig.SensorType)
		r.emitter.Emit(bus.SubjectSensorTrigger, trig)
	}
	return triggers, nil
}

// MarkOffline sets a sensor offline without clearing its last data.
// Returns false for an unknown id.
func (r *Registry) MarkOffline(id string) bool {
	r.mu.Lock()
	s, ok := r.sensors[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	s.Status = StatusOffline
	snapshot := *s
	r.mu.Unlock()

	r.logger.Info("Sensor offline", "id", id)
	r.emitter.Emit(bus.SubjectSensorOffline, snapshot)
	return true
}

// Get retrieves a sensor snapshot by id.
func (r *Registry) Get(id string) (*Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sensors[id]
	if !ok {
		return nil, false
	}
	snapshot := *s
	return &snapshot, true
}

// List returns sensor snapshots matching the filter.
func (r *Registry) List(filter Filter) []*Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		if filter.Type != "" && s.Type != filter.Type {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Zone != "" && s.Zone != filter.Zone {
			continue
		}
		snapshot := *s
		out = append(out, &snapshot)
	}
	return out
}

// GetCounts partitions registered sensors by type and by status.
func (r *Registry) GetCounts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := Counts{
		ByType:   make(map[Type]int),
		ByStatus: make(map[Status]int),
	}
	for _, s := range r.sensors {
		counts.Total++
		counts.ByType[s.Type]++
		counts.ByStatus[s.Status]++
	}
	return counts
}

// GetBuffer returns up to limit of the most recent readings for a sensor,
// oldest first. Unknown ids yield nil.
func (r *Registry) GetBuffer(id string, limit int) []Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buf, ok := r.buffers[id]
	if !ok {
		return nil
	}
	return buf.Snapshot(limit)
}

// GetLatestData returns the most recent reading per sensor.
func (r *Registry) GetLatestData() map[string]Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Reading)
	for id, s := range r.sensors {
		if s.LastData != nil {
			out[id] = *s.LastData
		}
	}
	return out
}

// AddGeofence registers a fence for breach evaluation. No event is
// emitted; this is a registry mutator only.
func (r *Registry) AddGeofence(fence geo.Geofence) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fence.ID == "" {
		fence.ID = uuid.New().String()
	}
	f := fence
	r.fences[f.ID] = &f
	return f.ID
}

// Geofences returns all registered fences.
func (r *Registry) Geofences() []geo.Geofence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]geo.Geofence, 0, len(r.fences))
	for _, f := range r.fences {
		out = append(out, *f)
	}
	return out
}

// AddToWatchlist records an identifier under a watchlist kind. Entries
// have no expiry; removal is the only review mechanism.
func (r *Registry) AddToWatchlist(kind WatchlistKind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.watchlists[kind]
	if !ok {
		set = make(map[string]struct{})
		r.watchlists[kind] = set
	}
	set[id] = struct{}{}
}

// RemoveFromWatchlist drops an identifier from a watchlist kind.
func (r *Registry) RemoveFromWatchlist(kind WatchlistKind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.watchlists[kind]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	return true
}

// Watchlist returns the identifiers recorded under a kind.
func (r *Registry) Watchlist(kind WatchlistKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.watchlists[kind]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// onWatchlist checks set membership. Caller holds the lock.
func (r *Registry) onWatchlist(kind WatchlistKind, id string) bool {
	set, ok := r.watchlists[kind]
	if !ok {
		return false
	}
	_, ok = set[id]
	return ok
}
