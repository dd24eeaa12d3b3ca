package orchestrator

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/fieldwatch/fieldwatch/internal/bus"
	"github.com/fieldwatch/fieldwatch/internal/config"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

// SensorStore persists sensor definitions across restarts.
type SensorStore interface {
	GetSensor(id string) *config.SensorConfig
	UpsertSensor(sc config.SensorConfig) error
	RemoveSensor(id string) error
}

// ConfigSync mirrors registry lifecycle events into the configuration
// file so sensors registered through the API survive a restart. Sensors
// already present in the file (the seeded ones) are left alone.
type ConfigSync struct {
	store  SensorStore
	logger *slog.Logger
}

// NewConfigSync creates a sync over a sensor store, typically the live
// configuration.
func NewConfigSync(store SensorStore) *ConfigSync {
	return &ConfigSync{
		store:  store,
		logger: slog.Default().With("component", "configsync"),
	}
}

// Start subscribes the sync to sensor lifecycle events on the event bus.
func (s *ConfigSync) Start(eb *bus.EventBus) error {
	if _, err := eb.Subscribe(bus.SubjectSensorRegistered, func(msg *nats.Msg) {
		var sensor sensors.Sensor
		if err := json.Unmarshal(msg.Data, &sensor); err != nil {
			s.logger.Error("Undecodable registration event", "error", err)
			return
		}
		s.persist(sensor)
	}); err != nil {
		return err
	}

	_, err := eb.Subscribe(bus.SubjectSensorUnregistered, func(msg *nats.Msg) {
		var sensor sensors.Sensor
		if err := json.Unmarshal(msg.Data, &sensor); err != nil {
			s.logger.Error("Undecodable unregistration event", "error", err)
			return
		}
		s.remove(sensor.ID)
	})
	return err
}

func (s *ConfigSync) persist(sensor sensors.Sensor) {
	if s.store.GetSensor(sensor.ID) != nil {
		return
	}

	sc := config.SensorConfig{
		ID:       sensor.ID,
		Name:     sensor.Name,
		Type:     string(sensor.Type),
		Zone:     sensor.Zone,
		Metadata: sensor.Metadata,
		Rules: config.RulesConfig{
			GeofenceID:     sensor.Config.GeofenceID,
			BatteryLow:     sensor.Config.BatteryLow,
			SpeedLimit:     sensor.Config.SpeedLimit,
			SmokeThreshold: sensor.Config.SmokeThreshold,
			GasThreshold:   sensor.Config.GasThreshold,
			TempMin:        sensor.Config.TempMin,
			TempMax:        sensor.Config.TempMax,
		},
	}
	if sensor.Location != nil {
		sc.Location = &config.LocationConfig{Lat: sensor.Location.Lat, Lon: sensor.Location.Lon}
	}

	if err := s.store.UpsertSensor(sc); err != nil {
		s.logger.Error("Failed to persist sensor", "sensor", sensor.ID, "error", err)
		return
	}
	s.logger.Info("Sensor persisted to configuration", "sensor", sensor.ID)
}

func (s *ConfigSync) remove(id string) {
	if s.store.GetSensor(id) == nil {
		return
	}
	if err := s.store.RemoveSensor(id); err != nil {
		s.logger.Error("Failed to remove persisted sensor", "sensor", id, "error", err)
		return
	}
	s.logger.Info("Sensor removed from configuration", "sensor", id)
}
