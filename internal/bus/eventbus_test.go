package bus

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func newTestBus(t *testing.T) *EventBus {
	t.Helper()
	// Port -1 asks the embedded server for a random free port.
	eb, err := New(Config{Host: "127.0.0.1", Port: -1}, slog.Default())
	if err != nil {
		t.Fatalf("Failed to start event bus: %v", err)
	}
	t.Cleanup(eb.Stop)
	return eb
}

func TestEventBus_EmitSubscribe(t *testing.T) {
	eb := newTestBus(t)

	received := make(chan map[string]any, 1)
	if _, err := eb.Subscribe(SubjectSensorTrigger, func(msg *nats.Msg) {
		var payload map[string]any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			t.Errorf("Undecodable payload: %v", err)
			return
		}
		received <- payload
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	eb.Emit(SubjectSensorTrigger, map[string]any{"name": "geofence_breach", "sensor_id": "drone-1"})
	if err := eb.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	select {
	case payload := <-received:
		if payload["name"] != "geofence_breach" {
			t.Errorf("Unexpected payload: %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestEventBus_WildcardSubscribe(t *testing.T) {
	eb := newTestBus(t)

	received := make(chan string, 4)
	if _, err := eb.Subscribe(">", func(msg *nats.Msg) {
		received <- msg.Subject
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	eb.Emit(SubjectAlertCreated, map[string]any{"id": "a-1"})
	eb.Emit(SubjectOrderFired, map[string]any{"order_id": "so-1"})
	if err := eb.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	subjects := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-received:
			subjects[s] = true
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for events")
		}
	}
	if !subjects[SubjectAlertCreated] || !subjects[SubjectOrderFired] {
		t.Errorf("Missing subjects: %v", subjects)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	eb := newTestBus(t)

	received := make(chan struct{}, 1)
	if _, err := eb.Subscribe(SubjectSensorData, func(msg *nats.Msg) {
		received <- struct{}{}
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	eb.Unsubscribe(SubjectSensorData)

	eb.Emit(SubjectSensorData, map[string]any{"sensor_id": "cam-1"})
	_ = eb.Flush()

	select {
	case <-received:
		t.Error("Received event after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}
