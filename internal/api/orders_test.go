package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/fieldwatch/fieldwatch/internal/bus"
	"github.com/fieldwatch/fieldwatch/internal/orders"
)

func newOrderServer(t *testing.T) (*httptest.Server, *orders.Matcher) {
	t.Helper()
	defs := []orders.Order{
		{
			ID:        "so-perimeter",
			Trigger:   "geofence_breach",
			Authority: 4,
			Responses: []orders.ResponseAction{{Responder: "drone-1", Action: "investigate"}},
		},
		{
			ID:        "so-patrol",
			Trigger:   "time == 0630",
			Authority: 2,
		},
	}
	matcher := orders.NewMatcher(defs, bus.NewRecorder(), clock.NewMock())
	srv := httptest.NewServer(NewOrderHandler(matcher).Routes())
	t.Cleanup(func() {
		srv.Close()
		matcher.StopMonitors()
	})
	return srv, matcher
}

func TestOrderHandler_List(t *testing.T) {
	srv, _ := newOrderServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var list []orders.Order
	decodeData(t, resp, &list)
	if len(list) != 2 {
		t.Errorf("Expected 2 orders, got %d", len(list))
	}
}

func TestOrderHandler_Check(t *testing.T) {
	srv, matcher := newOrderServer(t)

	resp := postJSON(t, srv.URL+"/check", CheckRequest{
		Trigger: "geofence_breach",
		Context: map[string]any{"sensor_id": "drone-1"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var result CheckResult
	decodeData(t, resp, &result)
	if !result.Matched || result.Order == nil || result.Order.ID != "so-perimeter" {
		t.Errorf("Unexpected result: %+v", result)
	}

	resp = postJSON(t, srv.URL+"/check", CheckRequest{Trigger: "nothing"})
	var miss CheckResult
	decodeData(t, resp, &miss)
	if miss.Matched {
		t.Error("Expected no match")
	}

	resp = postJSON(t, srv.URL+"/check", CheckRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing trigger, got %d", resp.StatusCode)
	}

	if logs := matcher.Logs(0); len(logs) != 1 {
		t.Errorf("Expected one log entry, got %d", len(logs))
	}
}

func TestOrderHandler_Logs(t *testing.T) {
	srv, matcher := newOrderServer(t)
	matcher.CheckTrigger("geofence_breach", nil)
	matcher.CheckTrigger("geofence_breach", nil)

	resp, err := http.Get(srv.URL + "/logs?limit=1")
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	var logs []orders.LogEntry
	decodeData(t, resp, &logs)
	if len(logs) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(logs))
	}

	resp, err = http.Get(srv.URL + "/logs?limit=-1")
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative limit, got %d", resp.StatusCode)
	}
}

func TestOrderHandler_Monitors(t *testing.T) {
	srv, _ := newOrderServer(t)

	resp := postJSON(t, srv.URL+"/so-patrol/monitor", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	// Second start conflicts.
	resp = postJSON(t, srv.URL+"/so-patrol/monitor", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}

	// Non-scheduled order cannot be monitored.
	resp = postJSON(t, srv.URL+"/so-perimeter/monitor", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/so-patrol/monitor", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", delResp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/so-patrol/monitor", nil)
	delResp, _ = http.DefaultClient.Do(req)
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on second stop, got %d", delResp.StatusCode)
	}
}
