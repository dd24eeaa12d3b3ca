package orchestrator

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldwatch/fieldwatch/internal/api"
	"github.com/fieldwatch/fieldwatch/internal/bus"
)

func TestMessageTypeFor(t *testing.T) {
	cases := []struct {
		subject string
		want    api.MessageType
	}{
		{bus.SubjectAlertCreated, api.MessageTypeAlert},
		{bus.SubjectAlertResolved, api.MessageTypeAlert},
		{bus.SubjectOrderFired, api.MessageTypeOrder},
		{bus.SubjectOrderEscalated, api.MessageTypeOrder},
		{bus.SubjectSensorTrigger, api.MessageTypeTrigger},
		{bus.SubjectSensorData, api.MessageTypeSensorState},
		{bus.SubjectSensorOffline, api.MessageTypeSensorState},
		{"something.else", api.MessageTypeEvent},
	}
	for _, tc := range cases {
		if got := messageTypeFor(tc.subject); got != tc.want {
			t.Errorf("messageTypeFor(%q) = %q, want %q", tc.subject, got, tc.want)
		}
	}
}

func TestBridge_ForwardsBusEvents(t *testing.T) {
	eb, err := bus.New(bus.Config{Host: "127.0.0.1", Port: -1}, slog.Default())
	if err != nil {
		t.Fatalf("Failed to start event bus: %v", err)
	}
	t.Cleanup(eb.Stop)

	hub := api.NewHub()
	go hub.Run()

	if err := NewBridge(hub).Start(eb); err != nil {
		t.Fatalf("Bridge start failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	eb.Emit(bus.SubjectAlertCreated, map[string]any{"id": "a-1", "priority": "high"})
	if err := eb.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	var msg api.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if msg.Type != api.MessageTypeAlert || msg.Subject != bus.SubjectAlertCreated {
		t.Errorf("Unexpected message: %+v", msg)
	}
	payload, ok := msg.Data.(map[string]any)
	if !ok || payload["id"] != "a-1" {
		t.Errorf("Payload not forwarded: %+v", msg.Data)
	}
}
