// Package orders maps trigger names to pre-authorized automated-response
// definitions and raises escalations when an automated response is not
// sufficient on its own.
package orders

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/fieldwatch/fieldwatch/internal/bus"
)

// maxLogEntries bounds the append-only activity log.
const maxLogEntries = 1000

// timeTriggerRe matches scheduled trigger strings of the form "time == HHMM".
var timeTriggerRe = regexp.MustCompile(`^time\s*==\s*(\d{4})$`)

var thresholdTermRe = regexp.MustCompile(`\s+OR\s+`)

// ResponseAction names a responder and the action it should take.
type ResponseAction struct {
	Responder string `json:"responder" yaml:"responder"`
	Action    string `json:"action" yaml:"action"`
}

// EscalationPolicy controls when and how a fired order escalates.
// Threshold is an OR-separated keyword expression matched case-insensitively
// against the concatenated response text.
type EscalationPolicy struct {
	Notify    bool   `json:"notify" yaml:"notify"`
	Threshold string `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Priority  string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Order is a pre-authorized automated response bound to a trigger name.
// Authority runs 1-5; level 4 and above makes escalation acknowledgment
// mandatory.
type Order struct {
	ID         string            `json:"id" yaml:"id"`
	Trigger    string            `json:"trigger" yaml:"trigger"`
	Authority  int               `json:"authority" yaml:"authority"`
	Responses  []ResponseAction  `json:"responses" yaml:"responses"`
	Escalation *EscalationPolicy `json:"escalation,omitempty" yaml:"escalation,omitempty"`
}

// scheduledAt returns the HHMM wall-clock match for time-based orders.
func (o *Order) scheduledAt() (string, bool) {
	m := timeTriggerRe.FindStringSubmatch(o.Trigger)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FiredOrder is the payload of order.fired events.
type FiredOrder struct {
	Order     Order          `json:"order"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Escalation is the payload of order.escalated events.
type Escalation struct {
	OrderID     string    `json:"order_id"`
	Trigger     string    `json:"trigger"`
	Priority    string    `json:"priority"`
	Reason      string    `json:"reason"`
	RequiresAck bool      `json:"requires_ack"`
	Responses   []string  `json:"responses,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// LogEntry is one activity log record.
type LogEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // triggered, escalated
	OrderID   string    `json:"order_id"`
	Trigger   string    `json:"trigger"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Matcher holds the configured standing orders, read-mostly after startup.
// Time-based monitors are the only asynchronous actors and take the same
// lock as synchronous callers before mutating state.
type Matcher struct {
	mu       sync.Mutex
	orders   []Order
	log      []LogEntry
	monitors map[string]chan struct{}

	emitter bus.Emitter
	clk     clock.Clock
	logger  *slog.Logger
}

// NewMatcher creates a matcher over the given order definitions. Orders
// without ids get one assigned. A nil or empty slice is valid: the matcher
// degrades to an empty order set rather than failing startup, and
// OrderCount exposes the zero to monitoring.
func NewMatcher(defs []Order, emitter bus.Emitter, clk clock.Clock) *Matcher {
	orders := make([]Order, len(defs))
	copy(orders, defs)
	for i := range orders {
		if orders[i].ID == "" {
			orders[i].ID = uuid.New().String()
		}
	}
	return &Matcher{
		orders:   orders,
		monitors: make(map[string]chan struct{}),
		emitter:  emitter,
		clk:      clk,
		logger:   slog.Default().With("component", "order_matcher"),
	}
}

// OrderCount returns the number of configured orders.
func (m *Matcher) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Orders returns a copy of the configured orders.
func (m *Matcher) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// CheckTrigger scans the configured orders for one whose trigger name
// equals name. Only the first match fires: multiple orders sharing a
// trigger name is not supported by this matching rule. On a match it logs
// a triggered activity entry, emits order.fired and returns the order.
func (m *Matcher) CheckTrigger(name string, ctx map[string]any) (*Order, bool) {
	m.mu.Lock()
	var matched *Order
	for i := range m.orders {
		if m.orders[i].Trigger == name {
			matched = &m.orders[i]
			break
		}
	}
	if matched == nil {
		m.mu.Unlock()
		return nil, false
	}

	order := *matched
	fired := FiredOrder{Order: order, Context: ctx, Timestamp: m.clk.Now()}
	m.appendLog(LogEntry{
		ID:        uuid.New().String(),
		Type:      "triggered",
		OrderID:   order.ID,
		Trigger:   name,
		Timestamp: fired.Timestamp,
	})
	m.mu.Unlock()

	m.logger.Info("Standing order fired", "order", order.ID, "trigger", name, "authority", order.Authority)
	m.emitter.Emit(bus.SubjectOrderFired, fired)
	return &order, true
}

// RequiresEscalation reports whether a fired order must be escalated given
// the collected response text: true when the policy carries the
// always-notify flag, or when any OR-separated threshold term appears in
// the concatenated responses (case-insensitive substring match).
func (m *Matcher) RequiresEscalation(order *Order, responses []string) bool {
	if order.Escalation == nil {
		return false
	}
	if order.Escalation.Notify {
		return true
	}
	if order.Escalation.Threshold == "" {
		return false
	}

	joined := strings.ToLower(strings.Join(responses, " "))
	// The OR delimiter must be whitespace-bounded so keywords that merely
	// contain the letters OR stay intact.
	for _, term := range thresholdTermRe.Split(order.Escalation.Threshold, -1) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(joined, term) {
			return true
		}
	}
	return false
}

// Escalate builds and emits an escalation record for a fired order.
// Priority falls back to "high"; acknowledgment is mandatory at authority
// level 4 and above.
func (m *Matcher) Escalate(order *Order, responses []string) Escalation {
	priority := "high"
	reason := "standing order response requires attention"
	if order.Escalation != nil {
		if order.Escalation.Priority != "" {
			priority = order.Escalation.Priority
		}
		if order.Escalation.Threshold != "" {
			reason = "threshold matched: " + order.Escalation.Threshold
		}
	}

	esc := Escalation{
		OrderID:     order.ID,
		Trigger:     order.Trigger,
		Priority:    priority,
		Reason:      reason,
		RequiresAck: order.Authority >= 4,
		Responses:   responses,
		Timestamp:   m.clk.Now(),
	}

	m.mu.Lock()
	m.appendLog(LogEntry{
		ID:        uuid.New().String(),
		Type:      "escalated",
		OrderID:   order.ID,
		Trigger:   order.Trigger,
		Detail:    esc.Reason,
		Timestamp: esc.Timestamp,
	})
	m.mu.Unlock()

	m.logger.Info("Standing order escalated", "order", order.ID, "priority", esc.Priority, "requires_ack", esc.RequiresAck)
	m.emitter.Emit(bus.SubjectOrderEscalated, esc)
	return esc
}

// InitializeMonitors starts one time-based monitor per scheduled order and
// returns how many were started.
func (m *Matcher) InitializeMonitors() int {
	started := 0
	for _, order := range m.Orders() {
		if _, ok := order.scheduledAt(); ok {
			if m.StartTimeBasedMonitor(order.ID) {
				started++
			}
		}
	}
	return started
}

// StartTimeBasedMonitor starts an independent repeating timer for a
// scheduled order, polling the clock once per minute and firing
// CheckTrigger when the wall clock matches. Returns false when the order
// is unknown, not time-based, or already monitored.
func (m *Matcher) StartTimeBasedMonitor(orderID string) bool {
	m.mu.Lock()
	var order *Order
	for i := range m.orders {
		if m.orders[i].ID == orderID {
			order = &m.orders[i]
			break
		}
	}
	if order == nil {
		m.mu.Unlock()
		return false
	}
	hhmm, ok := order.scheduledAt()
	if !ok {
		m.mu.Unlock()
		return false
	}
	if _, running := m.monitors[orderID]; running {
		m.mu.Unlock()
		return false
	}
	stop := make(chan struct{})
	m.monitors[orderID] = stop
	trigger := order.Trigger
	m.mu.Unlock()

	go m.runMonitor(orderID, trigger, hhmm, stop)
	return true
}

func (m *Matcher) runMonitor(orderID, trigger, hhmm string, stop chan struct{}) {
	ticker := m.clk.Ticker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if now.Format("1504") == hhmm {
				m.CheckTrigger(trigger, map[string]any{"scheduled": true, "order_id": orderID})
			}
		}
	}
}

// StopMonitor cancels the monitor for one order.
func (m *Matcher) StopMonitor(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	stop, ok := m.monitors[orderID]
	if !ok {
		return false
	}
	close(stop)
	delete(m.monitors, orderID)
	return true
}

// StopMonitors cancels all running monitors.
func (m *Matcher) StopMonitors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, stop := range m.monitors {
		close(stop)
		delete(m.monitors, id)
	}
}

// Logs returns the most recent limit activity entries in chronological
// order. limit <= 0 returns everything retained.
func (m *Matcher) Logs(limit int) []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.log) {
		limit = len(m.log)
	}
	out := make([]LogEntry, limit)
	copy(out, m.log[len(m.log)-limit:])
	return out
}

// appendLog adds an entry, newest-last, dropping the oldest beyond the
// bound. Caller holds the lock.
func (m *Matcher) appendLog(e LogEntry) {
	m.log = append(m.log, e)
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
}
