package orders

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/fieldwatch/fieldwatch/internal/bus"
)

func testOrders() []Order {
	return []Order{
		{
			ID:        "so-perimeter",
			Trigger:   "geofence_breach",
			Authority: 4,
			Responses: []ResponseAction{
				{Responder: "drone-1", Action: "investigate"},
			},
			Escalation: &EscalationPolicy{
				Threshold: "armed OR multiple intruders",
				Priority:  "critical",
			},
		},
		{
			ID:        "so-sos",
			Trigger:   "sos_activated",
			Authority: 5,
			Responses: []ResponseAction{
				{Responder: "ops", Action: "dispatch"},
			},
			Escalation: &EscalationPolicy{Notify: true},
		},
		{
			ID:        "so-duplicate",
			Trigger:   "geofence_breach",
			Authority: 1,
		},
		{
			ID:        "so-patrol",
			Trigger:   "time == 0630",
			Authority: 2,
			Responses: []ResponseAction{
				{Responder: "drone-2", Action: "patrol perimeter"},
			},
		},
	}
}

func newTestMatcher() (*Matcher, *bus.Recorder, *clock.Mock) {
	rec := bus.NewRecorder()
	clk := clock.NewMock()
	return NewMatcher(testOrders(), rec, clk), rec, clk
}

func TestMatcher_CheckTrigger_FirstMatchOnly(t *testing.T) {
	m, rec, _ := newTestMatcher()

	order, ok := m.CheckTrigger("geofence_breach", map[string]any{"sensor_id": "d-1"})
	if !ok {
		t.Fatal("expected a match")
	}
	if order.ID != "so-perimeter" {
		t.Errorf("only the first matching order fires, got %s", order.ID)
	}

	fired := rec.BySubject(bus.SubjectOrderFired)
	if len(fired) != 1 {
		t.Fatalf("expected exactly one order.fired event, got %d", len(fired))
	}

	logs := m.Logs(0)
	if len(logs) != 1 || logs[0].Type != "triggered" || logs[0].OrderID != "so-perimeter" {
		t.Errorf("expected one triggered log entry for so-perimeter, got %+v", logs)
	}
}

func TestMatcher_CheckTrigger_NoMatch(t *testing.T) {
	m, rec, _ := newTestMatcher()

	if _, ok := m.CheckTrigger("nonexistent", nil); ok {
		t.Fatal("expected no match")
	}
	if len(rec.Events()) != 0 {
		t.Error("no event should be emitted on a miss")
	}
	if len(m.Logs(0)) != 0 {
		t.Error("a miss must not be logged")
	}
}

func TestMatcher_RequiresEscalation(t *testing.T) {
	m, _, _ := newTestMatcher()
	withThreshold := &Order{Escalation: &EscalationPolicy{Threshold: "armed OR multiple intruders"}}
	// A keyword containing the letters OR is one term, not two fragments.
	embeddedOR := &Order{Escalation: &EscalationPolicy{Threshold: "FORCED"}}

	tests := []struct {
		name      string
		order     *Order
		responses []string
		want      bool
	}{
		{"always notify", &Order{Escalation: &EscalationPolicy{Notify: true}}, nil, true},
		{"no policy", &Order{}, []string{"anything"}, false},
		{"threshold term present", withThreshold, []string{"drone-1: subject appears ARMED"}, true},
		{"second OR term present", withThreshold, []string{"report: multiple intruders seen"}, true},
		{"no term present", withThreshold, []string{"area clear"}, false},
		{"empty threshold", &Order{Escalation: &EscalationPolicy{}}, []string{"armed"}, false},
		{"embedded OR stays whole", embeddedOR, []string{"support dispatched"}, false},
		{"embedded OR term matches", embeddedOR, []string{"forced entry confirmed"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.RequiresEscalation(tt.order, tt.responses); got != tt.want {
				t.Errorf("RequiresEscalation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatcher_Escalate(t *testing.T) {
	m, rec, _ := newTestMatcher()
	orders := m.Orders()

	esc := m.Escalate(&orders[0], []string{"subject armed"})
	if esc.Priority != "critical" {
		t.Errorf("priority should come from policy, got %s", esc.Priority)
	}
	if !esc.RequiresAck {
		t.Error("authority 4 requires acknowledgment")
	}

	low := Order{ID: "low", Trigger: "x", Authority: 2}
	esc = m.Escalate(&low, nil)
	if esc.Priority != "high" {
		t.Errorf("default priority should be high, got %s", esc.Priority)
	}
	if esc.RequiresAck {
		t.Error("authority 2 must not require acknowledgment")
	}

	if len(rec.BySubject(bus.SubjectOrderEscalated)) != 2 {
		t.Error("expected two order.escalated events")
	}
}

func TestMatcher_TimeBasedMonitor(t *testing.T) {
	rec := bus.NewRecorder()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 6, 28, 0, 0, time.UTC))
	m := NewMatcher(testOrders(), rec, clk)

	if started := m.InitializeMonitors(); started != 1 {
		t.Fatalf("expected 1 monitor started, got %d", started)
	}
	defer m.StopMonitors()

	// Let the monitor goroutine register its ticker with the mock clock.
	time.Sleep(10 * time.Millisecond)

	// 06:29 - no fire yet.
	clk.Add(time.Minute)
	if got := len(rec.BySubject(bus.SubjectOrderFired)); got != 0 {
		t.Fatalf("expected no firing before 0630, got %d", got)
	}

	// 06:30 - the patrol order fires.
	clk.Add(time.Minute)
	fired := rec.BySubject(bus.SubjectOrderFired)
	if len(fired) != 1 {
		t.Fatalf("expected one firing at 0630, got %d", len(fired))
	}
	payload := fired[0].Payload.(FiredOrder)
	if payload.Order.ID != "so-patrol" {
		t.Errorf("expected so-patrol, got %s", payload.Order.ID)
	}

	// 06:31 onward - no refiring.
	clk.Add(2 * time.Minute)
	if got := len(rec.BySubject(bus.SubjectOrderFired)); got != 1 {
		t.Errorf("expected no refiring after the scheduled minute, got %d", got)
	}
}

func TestMatcher_MonitorCancellation(t *testing.T) {
	rec := bus.NewRecorder()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 6, 29, 0, 0, time.UTC))
	m := NewMatcher(testOrders(), rec, clk)

	if !m.StartTimeBasedMonitor("so-patrol") {
		t.Fatal("expected monitor to start")
	}
	if m.StartTimeBasedMonitor("so-patrol") {
		t.Error("second start for the same order should be refused")
	}
	if m.StartTimeBasedMonitor("so-sos") {
		t.Error("non-scheduled orders cannot be monitored")
	}
	if m.StartTimeBasedMonitor("missing") {
		t.Error("unknown order id should return false")
	}

	time.Sleep(10 * time.Millisecond)

	if !m.StopMonitor("so-patrol") {
		t.Fatal("expected stop to succeed")
	}
	if m.StopMonitor("so-patrol") {
		t.Error("second stop should return false")
	}
	time.Sleep(10 * time.Millisecond)

	// Stopped monitor must not fire.
	clk.Add(time.Minute)
	if got := len(rec.BySubject(bus.SubjectOrderFired)); got != 0 {
		t.Errorf("cancelled monitor fired %d times", got)
	}
}

func TestMatcher_EmptyOrderSet(t *testing.T) {
	m := NewMatcher(nil, bus.NewRecorder(), clock.NewMock())

	if m.OrderCount() != 0 {
		t.Errorf("expected zero orders, got %d", m.OrderCount())
	}
	if _, ok := m.CheckTrigger("anything", nil); ok {
		t.Error("empty order set can never match")
	}
	if m.InitializeMonitors() != 0 {
		t.Error("no monitors should start for an empty order set")
	}
}

func TestMatcher_LogsBounded(t *testing.T) {
	m, _, _ := newTestMatcher()

	for i := 0; i < maxLogEntries+50; i++ {
		m.CheckTrigger("sos_activated", nil)
	}

	logs := m.Logs(0)
	if len(logs) != maxLogEntries {
		t.Fatalf("log should be bounded to %d, got %d", maxLogEntries, len(logs))
	}

	recent := m.Logs(10)
	if len(recent) != 10 {
		t.Errorf("expected 10 entries, got %d", len(recent))
	}
	if !recent[9].Timestamp.Before(time.Now().Add(time.Hour)) {
		t.Error("sanity: timestamps populated")
	}
}
