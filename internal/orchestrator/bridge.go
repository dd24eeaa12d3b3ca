package orchestrator

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/fieldwatch/fieldwatch/internal/api"
	"github.com/fieldwatch/fieldwatch/internal/bus"
)

// Bridge forwards every bus event to the WebSocket hub so dashboard
// clients see the same stream internal components do.
type Bridge struct {
	hub    *api.Hub
	logger *slog.Logger
}

// NewBridge creates a bus-to-hub bridge.
func NewBridge(hub *api.Hub) *Bridge {
	return &Bridge{
		hub:    hub,
		logger: slog.Default().With("component", "ws_bridge"),
	}
}

// Start subscribes the bridge to all subjects.
func (b *Bridge) Start(eb *bus.EventBus) error {
	_, err := eb.Subscribe(">", func(msg *nats.Msg) {
		var payload any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			b.logger.Warn("Undecodable bus payload", "subject", msg.Subject, "error", err)
			return
		}
		b.hub.Broadcast(api.BusMessage(messageTypeFor(msg.Subject), msg.Subject, payload))
	})
	return err
}

// messageTypeFor maps a bus subject to the hub's client-facing message type.
func messageTypeFor(subject string) api.MessageType {
	switch {
	case strings.HasPrefix(subject, "alert."):
		return api.MessageTypeAlert
	case strings.HasPrefix(subject, "order."):
		return api.MessageTypeOrder
	case subject == bus.SubjectSensorTrigger:
		return api.MessageTypeTrigger
	case strings.HasPrefix(subject, "sensor."):
		return api.MessageTypeSensorState
	default:
		return api.MessageTypeEvent
	}
}
