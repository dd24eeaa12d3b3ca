// Package sensors owns sensor identities, ingests readings, evaluates
// per-type trigger rules and emits typed trigger events.
package sensors

import (
	"time"

	"github.com/fieldwatch/fieldwatch/internal/geo"
)

// Type is the fixed sensor type enumeration.
type Type string

const (
	TypeCamera        Type = "camera"
	TypeDrone         Type = "drone"
	TypeGPSTracker    Type = "gps_tracker"
	TypeMotionSensor  Type = "motion_sensor"
	TypeEnvironmental Type = "environmental"
	TypeAccessControl Type = "access_control"
	TypeRadio         Type = "radio"
	TypeGeneric       Type = "generic"
)

// knownTypes is the registration validation set.
var knownTypes = map[Type]bool{
	TypeCamera:        true,
	TypeDrone:         true,
	TypeGPSTracker:    true,
	TypeMotionSensor:  true,
	TypeEnvironmental: true,
	TypeAccessControl: true,
	TypeRadio:         true,
	TypeGeneric:       true,
}

// Status represents the operational status of a sensor.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Config holds per-sensor rule thresholds and the geofence reference.
// Zero values fall back to the stated defaults at evaluation time.
type Config struct {
	GeofenceID     string   `json:"geofence_id,omitempty" yaml:"geofence_id,omitempty"`
	BatteryLow     float64  `json:"battery_low,omitempty" yaml:"battery_low,omitempty"`
	SpeedLimit     float64  `json:"speed_limit,omitempty" yaml:"speed_limit,omitempty"`
	SmokeThreshold float64  `json:"smoke_threshold,omitempty" yaml:"smoke_threshold,omitempty"`
	GasThreshold   float64  `json:"gas_threshold,omitempty" yaml:"gas_threshold,omitempty"`
	TempMin        *float64 `json:"temp_min,omitempty" yaml:"temp_min,omitempty"`
	TempMax        *float64 `json:"temp_max,omitempty" yaml:"temp_max,omitempty"`
}

// Stats counts activity on a sensor since registration.
type Stats struct {
	Readings int `json:"readings"`
	Triggers int `json:"triggers"`
	Errors   int `json:"errors"`
}

// Sensor is a registered field sensor. Mutable fields (Status, LastSeen,
// LastData, Stats) are owned exclusively by the Registry.
type Sensor struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      Type           `json:"type"`
	Location  *geo.Point     `json:"location,omitempty"`
	Zone      string         `json:"zone,omitempty"`
	Config    Config         `json:"config"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    Status         `json:"status"`
	LastSeen  *time.Time     `json:"last_seen,omitempty"`
	LastData  *Reading       `json:"last_data,omitempty"`
	Stats     Stats          `json:"stats"`
	CreatedAt time.Time      `json:"created_at"`
}

// Detection is a single pre-classified detection within a camera reading.
type Detection struct {
	Class      string  `json:"class"` // person, vehicle, face, plate
	ID         string  `json:"id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Reading is a timestamped, sensor-scoped record of type-specific fields.
// Immutable once ingested. Fields irrelevant to a sensor type are left at
// their zero value and never evaluated.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`

	// camera
	Motion     bool        `json:"motion,omitempty"`
	Detections []Detection `json:"detections,omitempty"`

	// drone / gps_tracker
	Battery  *float64   `json:"battery,omitempty"`
	Position *geo.Point `json:"position,omitempty"`
	Speed    *float64   `json:"speed,omitempty"`
	SOS      bool       `json:"sos,omitempty"`

	// motion_sensor
	Triggered bool `json:"triggered,omitempty"`
	Tamper    bool `json:"tamper,omitempty"`

	// environmental
	Smoke       *float64 `json:"smoke,omitempty"`
	Gas         *float64 `json:"gas,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// access_control
	Granted   *bool  `json:"granted,omitempty"`
	EventType string `json:"event_type,omitempty"` // forced, badge, pin

	// radio
	UnknownSource bool `json:"unknown_source,omitempty"`
	Jamming       bool `json:"jamming,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Trigger names from the fixed per-type vocabulary.
const (
	TriggerMotionDetected   = "motion_detected"
	TriggerPersonDetected   = "person_detected"
	TriggerVehicleDetected  = "vehicle_detected"
	TriggerFaceMatch        = "face_match"
	TriggerLowBattery       = "low_battery"
	TriggerGeofenceBreach   = "geofence_breach"
	TriggerBatteryLow       = "battery_low"
	TriggerSpeedAlert       = "speed_alert"
	TriggerSOSActivated     = "sos_activated"
	TriggerTamperAlert      = "tamper_alert"
	TriggerSmokeDetected    = "smoke_detected"
	TriggerGasLeak          = "gas_leak"
	TriggerTemperatureAlert = "temperature_alert"
	TriggerAccessDenied     = "access_denied"
	TriggerForcedEntry      = "forced_entry"
	TriggerUnknownFrequency = "unknown_frequency"
	TriggerJammingDetected  = "jamming_detected"
)

// Trigger is the ephemeral event produced when a reading satisfies a rule.
type Trigger struct {
	Name       string    `json:"name"`
	SensorID   string    `json:"sensor_id"`
	SensorName string    `json:"sensor_name"`
	SensorType Type      `json:"sensor_type"`
	Zone       string    `json:"zone,omitempty"`
	Reading    Reading   `json:"reading"`
	Timestamp  time.Time `json:"timestamp"`
}

// WatchlistKind is the fixed watchlist entry typing.
type WatchlistKind string

const (
	WatchlistFace   WatchlistKind = "face"
	WatchlistPlate  WatchlistKind = "plate"
	WatchlistDevice WatchlistKind = "device"
)

// Counts partitions registered sensors by type and by status.
type Counts struct {
	Total    int            `json:"total"`
	ByType   map[Type]int   `json:"by_type"`
	ByStatus map[Status]int `json:"by_status"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type   Type
	Status Status
	Zone   string
}

// Default rule thresholds, applied when the sensor config leaves them unset.
const (
	defaultDroneBatteryLow = 20.0
	defaultGPSBatteryLow   = 15.0
	defaultSpeedLimit      = 150.0
	defaultSmokeThreshold  = 50.0
	defaultGasThreshold    = 100.0
	defaultTempMin         = 0.0
	defaultTempMax         = 50.0
)
