package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldwatch/fieldwatch/internal/bus"
	"github.com/fieldwatch/fieldwatch/internal/geo"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

func newSensorServer(t *testing.T) (*httptest.Server, *sensors.Registry) {
	t.Helper()
	registry := sensors.NewRegistry(100, bus.NewRecorder())
	srv := httptest.NewServer(NewSensorHandler(registry).Routes())
	t.Cleanup(srv.Close)
	return srv, registry
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("Failed to decode data: %v", err)
		}
	}
}

func TestSensorHandler_Register(t *testing.T) {
	srv, _ := newSensorServer(t)

	resp := postJSON(t, srv.URL+"/", sensors.Spec{
		ID:   "drone-1",
		Name: "Perimeter Drone",
		Type: sensors.TypeDrone,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var s sensors.Sensor
	decodeData(t, resp, &s)
	if s.ID != "drone-1" || s.Status != sensors.StatusOnline {
		t.Errorf("Unexpected sensor: %+v", s)
	}
}

func TestSensorHandler_Register_Invalid(t *testing.T) {
	srv, _ := newSensorServer(t)

	// Validation failure: no name.
	resp := postJSON(t, srv.URL+"/", sensors.Spec{Type: sensors.TypeCamera})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", resp.StatusCode)
	}

	// Unknown type passes shape validation but the registry rejects it.
	resp = postJSON(t, srv.URL+"/", sensors.Spec{Name: "x", Type: "submarine"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", resp.StatusCode)
	}
}

func TestSensorHandler_GetAndList(t *testing.T) {
	srv, registry := newSensorServer(t)
	mustRegister(t, registry, sensors.Spec{ID: "cam-1", Name: "Gate", Type: sensors.TypeCamera, Zone: "north"})
	mustRegister(t, registry, sensors.Spec{ID: "env-1", Name: "Shed", Type: sensors.TypeEnvironmental, Zone: "south"})

	resp, err := http.Get(srv.URL + "/cam-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var s sensors.Sensor
	decodeData(t, resp, &s)
	if s.Name != "Gate" {
		t.Errorf("Unexpected sensor: %+v", s)
	}

	resp, err = http.Get(srv.URL + "/missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/?zone=north")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var list []sensors.Sensor
	decodeData(t, resp, &list)
	if len(list) != 1 || list[0].ID != "cam-1" {
		t.Errorf("Zone filter failed: %+v", list)
	}
}

func TestSensorHandler_IngestAndBuffer(t *testing.T) {
	srv, registry := newSensorServer(t)
	mustRegister(t, registry, sensors.Spec{ID: "env-1", Name: "Shed", Type: sensors.TypeEnvironmental})

	smoke := 80.0
	resp := postJSON(t, srv.URL+"/env-1/data", sensors.Reading{Smoke: &smoke})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var result IngestResponse
	decodeData(t, resp, &result)
	if len(result.Triggers) != 1 || result.Triggers[0].Name != "smoke_detected" {
		t.Errorf("Expected smoke_detected trigger, got %+v", result.Triggers)
	}

	resp = postJSON(t, srv.URL+"/missing/data", sensors.Reading{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown sensor, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/env-1/data")
	if err != nil {
		t.Fatalf("Buffer failed: %v", err)
	}
	var readings []sensors.Reading
	decodeData(t, getResp, &readings)
	if len(readings) != 1 || readings[0].Smoke == nil || *readings[0].Smoke != 80 {
		t.Errorf("Buffer did not retain the reading: %+v", readings)
	}
}

func TestSensorHandler_Unregister(t *testing.T) {
	srv, registry := newSensorServer(t)
	mustRegister(t, registry, sensors.Spec{ID: "cam-1", Name: "Gate", Type: sensors.TypeCamera})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/cam-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	if _, ok := registry.Get("cam-1"); ok {
		t.Error("Sensor still registered")
	}
}

func TestSensorHandler_Offline(t *testing.T) {
	srv, registry := newSensorServer(t)
	mustRegister(t, registry, sensors.Spec{ID: "cam-1", Name: "Gate", Type: sensors.TypeCamera})

	resp := postJSON(t, srv.URL+"/cam-1/offline", struct{}{})
	var s sensors.Sensor
	decodeData(t, resp, &s)
	if s.Status != sensors.StatusOffline {
		t.Errorf("Expected offline status, got %s", s.Status)
	}
}

func TestGeofenceHandler(t *testing.T) {
	registry := sensors.NewRegistry(100, bus.NewRecorder())
	srv := httptest.NewServer(NewGeofenceHandler(registry).Routes())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/", geo.Geofence{
		Name:    "North Perimeter",
		Type:    geo.FenceCircle,
		Center:  geo.Point{Lat: 37, Lon: -122},
		RadiusM: 500,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var fence geo.Geofence
	decodeData(t, resp, &fence)
	if fence.ID == "" {
		t.Error("Expected an assigned fence id")
	}

	// Geometry validation.
	resp = postJSON(t, srv.URL+"/", geo.Geofence{Type: geo.FenceCircle})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero radius, got %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/", geo.Geofence{Type: geo.FencePolygon, Vertices: []geo.Point{{}, {}}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for degenerate polygon, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var fences []geo.Geofence
	decodeData(t, listResp, &fences)
	if len(fences) != 1 {
		t.Errorf("Expected 1 fence, got %d", len(fences))
	}
}

func TestWatchlistHandler(t *testing.T) {
	registry := sensors.NewRegistry(100, bus.NewRecorder())
	srv := httptest.NewServer(NewWatchlistHandler(registry).Routes())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/face", WatchlistEntry{ID: "subject-7"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/fingerprint", WatchlistEntry{ID: "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown kind, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(srv.URL + "/face")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var entries []string
	decodeData(t, listResp, &entries)
	if len(entries) != 1 || entries[0] != "subject-7" {
		t.Errorf("Unexpected entries: %v", entries)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/face/subject-7", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", delResp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/face/subject-7", nil)
	delResp, _ = http.DefaultClient.Do(req)
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", delResp.StatusCode)
	}
}

func mustRegister(t *testing.T, registry *sensors.Registry, spec sensors.Spec) {
	t.Helper()
	if _, err := registry.Register(spec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}
