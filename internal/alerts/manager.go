package alerts

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/fieldwatch/fieldwatch/internal/bus"
)

// defaultMaxHistory bounds the resolved-alert history ring.
const defaultMaxHistory = 1000

// HistoryStore is a pluggable persistence adapter for resolved alerts:
// snapshot on resolve, load on start. The live set never touches it.
type HistoryStore interface {
	SaveResolved(a *Alert) error
	LoadHistory(limit int) ([]*Alert, error)
}

// Manager owns the live alert set, the escalation timers and the bounded
// history. All state is guarded by one mutex; timers acquire it before
// mutating, exactly as synchronous callers do.
type Manager struct {
	mu      sync.Mutex
	active  map[string]*Alert
	history []*Alert // newest first
	timers  map[string]*clock.Timer

	maxHistory int
	store      HistoryStore
	emitter    bus.Emitter
	clk        clock.Clock
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxHistory overrides the bounded history size.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithHistoryStore attaches a persistence adapter. Resolved alerts are
// snapshotted to it and history is preloaded from it.
func WithHistoryStore(s HistoryStore) Option {
	return func(m *Manager) { m.store = s }
}

// NewManager creates an alert manager.
func NewManager(emitter bus.Emitter, clk clock.Clock, opts ...Option) *Manager {
	m := &Manager{
		active:     make(map[string]*Alert),
		timers:     make(map[string]*clock.Timer),
		maxHistory: defaultMaxHistory,
		emitter:    emitter,
		clk:        clk,
		logger:     slog.Default().With("component", "alert_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store != nil {
		loaded, err := m.store.LoadHistory(m.maxHistory)
		if err != nil {
			m.logger.Warn("Failed to load alert history", "error", err)
		} else {
			m.history = loaded
		}
	}
	return m
}

// Create registers a new alert. Priority defaults to medium, category to
// operational. Unless auto-escalation is disabled, a one-shot escalation
// timer is armed when the priority carries a timeout.
func (m *Manager) Create(opts CreateOptions) *Alert {
	priority := opts.Priority
	if !priority.Valid() {
		priority = PriorityMedium
	}
	category := opts.Category
	if category == "" {
		category = CategoryOperational
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := m.clk.Now()
	a := &Alert{
		ID:           id,
		Priority:     priority,
		PriorityRank: priority.Rank(),
		Category:     category,
		Title:        opts.Title,
		Message:      opts.Message,
		Source:       opts.Source,
		Payload:      opts.Payload,
		RequiresAck:  opts.RequiresAck,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	autoEscalate := opts.AutoEscalate == nil || *opts.AutoEscalate

	m.mu.Lock()
	m.active[a.ID] = a
	if autoEscalate {
		m.armTimer(a)
	}
	snapshot := a.clone()
	m.mu.Unlock()

	m.logger.Info("Alert created", "id", a.ID, "priority", a.Priority, "category", a.Category, "title", a.Title)
	m.emitter.Emit(bus.SubjectAlertCreated, snapshot)
	return snapshot
}

// Acknowledge marks an active alert acknowledged and cancels its
// escalation timer: acknowledged alerts never auto-escalate. Unknown ids
// are a soft no-op returning nil.
func (m *Manager) Acknowledge(id, actor, note string) *Alert {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	now := m.clk.Now()
	a.Acknowledged = true
	a.AcknowledgedBy = actor
	a.AcknowledgedAt = &now
	a.UpdatedAt = now
	if note != "" {
		a.Notes = append(a.Notes, Note{Type: NoteAcknowledgment, Actor: actor, Text: note, Timestamp: now})
	}
	m.cancelTimer(id)
	snapshot := a.clone()
	m.mu.Unlock()

	m.logger.Info("Alert acknowledged", "id", id, "by", actor)
	m.emitter.Emit(bus.SubjectAlertAcknowledged, snapshot)
	return snapshot
}

// Resolve terminally resolves an alert: its timer is cancelled, it is
// removed from the live set and prepended to the bounded history. Unknown
// ids are a soft no-op returning nil. A resolved alert is never
// reactivated; a recurring condition gets a new alert.
func (m *Manager) Resolve(id, actor, resolution string) *Alert {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}

	now := m.clk.Now()
	a.Resolved = true
	a.ResolvedBy = actor
	a.ResolvedAt = &now
	a.UpdatedAt = now
	if resolution != "" {
		a.Notes = append(a.Notes, Note{Type: NoteResolution, Actor: actor, Text: resolution, Timestamp: now})
	}
	m.cancelTimer(id)
	delete(m.active, id)

	m.history = append([]*Alert{a}, m.history...)
	if len(m.history) > m.maxHistory {
		m.history = m.history[:m.maxHistory]
	}
	snapshot := a.clone()
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveResolved(snapshot); err != nil {
			m.logger.Warn("Failed to snapshot resolved alert", "id", id, "error", err)
		}
	}

	m.logger.Info("Alert resolved", "id", id, "by", actor)
	m.emitter.Emit(bus.SubjectAlertResolved, snapshot)
	return snapshot
}

// Escalate advances an active alert to the next priority. At critical it
// is a no-op: the priority stays and the escalation level stops
// incrementing. A new timer is armed when the new priority carries a
// timeout.
func (m *Manager) Escalate(id, reason string) *Alert {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	snapshot, escalated := m.escalateLocked(a, reason)
	m.mu.Unlock()

	if escalated {
		m.notifyEscalated(snapshot)
	}
	return snapshot
}

// escalateLocked advances the priority, records the escalation note and
// re-arms the timer. Reports whether anything changed; at critical it is
// a no-op. Caller holds the lock.
func (m *Manager) escalateLocked(a *Alert, reason string) (*Alert, bool) {
	next := a.Priority.next()
	if next == a.Priority {
		return a.clone(), false
	}

	now := m.clk.Now()
	a.Priority = next
	a.PriorityRank = next.Rank()
	a.EscalationLvl++
	a.UpdatedAt = now
	if reason == "" {
		reason = "escalated to " + string(next)
	}
	a.Notes = append(a.Notes, Note{Type: NoteEscalation, Text: reason, Timestamp: now})

	m.cancelTimer(a.ID)
	m.armTimer(a)
	return a.clone(), true
}

// notifyEscalated logs and publishes an escalation after the lock has
// been released.
func (m *Manager) notifyEscalated(snapshot *Alert) {
	reason := snapshot.Notes[len(snapshot.Notes)-1].Text
	m.logger.Info("Alert escalated", "id", snapshot.ID, "priority", snapshot.Priority, "level", snapshot.EscalationLvl, "reason", reason)
	m.emitter.Emit(bus.SubjectAlertEscalated, snapshot)
	m.emitter.Emit(bus.SubjectAlertUpdated, snapshot)
}

// AddNote appends a plain note to an active alert.
func (m *Manager) AddNote(id, actor, text string) *Alert {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	now := m.clk.Now()
	a.Notes = append(a.Notes, Note{Type: NotePlain, Actor: actor, Text: text, Timestamp: now})
	a.UpdatedAt = now
	snapshot := a.clone()
	m.mu.Unlock()

	m.emitter.Emit(bus.SubjectAlertUpdated, snapshot)
	return snapshot
}

// Assign sets the assignee of an active alert.
func (m *Manager) Assign(id, actor, assignee string) *Alert {
	m.mu.Lock()
	a, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	now := m.clk.Now()
	a.Assignee = assignee
	a.Notes = append(a.Notes, Note{Type: NoteAssignment, Actor: actor, Text: "assigned to " + assignee, Timestamp: now})
	a.UpdatedAt = now
	snapshot := a.clone()
	m.mu.Unlock()

	m.emitter.Emit(bus.SubjectAlertAssigned, snapshot)
	return snapshot
}

// Get returns a snapshot of an active alert.
func (m *Manager) Get(id string) (*Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[id]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

// Active returns unresolved alerts sorted by descending priority rank,
// then descending creation time: the canonical what-needs-attention-first
// view.
func (m *Manager) Active(filter ActiveFilter) []*Alert {
	m.mu.Lock()
	out := make([]*Alert, 0, len(m.active))
	for _, a := range m.active {
		if filter.Priority != "" && a.Priority != filter.Priority {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		if filter.UnacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a.clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityRank != out[j].PriorityRank {
			return out[i].PriorityRank > out[j].PriorityRank
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Counts aggregates the live set by priority and category.
func (m *Manager) Counts() AlertCounts {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := AlertCounts{
		ByPriority: make(map[Priority]int),
		ByCategory: make(map[Category]int),
	}
	for _, a := range m.active {
		counts.Active++
		counts.ByPriority[a.Priority]++
		counts.ByCategory[a.Category]++
		if !a.Acknowledged {
			counts.Unacknowledged++
		}
	}
	return counts
}

// History returns up to limit resolved alerts, newest first, optionally
// filtered by priority, category and creation-time range. History entries
// are immutable.
func (m *Manager) History(limit int, filter HistoryFilter) []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = m.maxHistory
	}
	out := make([]*Alert, 0, limit)
	for _, a := range m.history {
		if filter.Priority != "" && a.Priority != filter.Priority {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		if !filter.Since.IsZero() && a.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && a.CreatedAt.After(filter.Until) {
			continue
		}
		out = append(out, a.clone())
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Security creates a security-category alert sourced from the sensor net.
func (m *Manager) Security(title, message string, payload map[string]any) *Alert {
	return m.Create(CreateOptions{
		Priority: PriorityHigh,
		Category: CategorySecurity,
		Title:    title,
		Message:  message,
		Source:   "sensor-net",
		Payload:  payload,
	})
}

// Intelligence creates an intelligence-category alert.
func (m *Manager) Intelligence(title, message string, payload map[string]any) *Alert {
	return m.Create(CreateOptions{
		Priority: PriorityMedium,
		Category: CategoryIntelligence,
		Title:    title,
		Message:  message,
		Source:   "analysis",
		Payload:  payload,
	})
}

// System creates a system-category alert.
func (m *Manager) System(title, message string, payload map[string]any) *Alert {
	return m.Create(CreateOptions{
		Priority: PriorityMedium,
		Category: CategorySystem,
		Title:    title,
		Message:  message,
		Source:   "system",
		Payload:  payload,
	})
}

// armTimer arms the escalation timer for an alert when its priority has
// a timeout. At most one live timer exists per alert; callers cancel any
// prior timer first. Caller holds the lock.
func (m *Manager) armTimer(a *Alert) {
	timeout, ok := escalationTimeouts[a.Priority]
	if !ok {
		return
	}
	id := a.ID
	m.timers[id] = m.clk.AfterFunc(timeout, func() {
		m.autoEscalate(id)
	})
}

// cancelTimer stops and forgets the timer for an alert id, if any.
// Caller holds the lock.
func (m *Manager) cancelTimer(id string) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

// autoEscalate fires when an escalation timer expires. Firing against an
// alert that has since been acknowledged or resolved is a safe no-op.
// The acknowledged check and the escalation share one lock acquisition
// so an acknowledgment racing the timer can never be escalated.
func (m *Manager) autoEscalate(id string) {
	m.mu.Lock()
	delete(m.timers, id)
	a, ok := m.active[id]
	if !ok || a.Acknowledged {
		m.mu.Unlock()
		return
	}
	snapshot, escalated := m.escalateLocked(a, "auto-escalated: acknowledgment timeout")
	m.mu.Unlock()

	if escalated {
		m.notifyEscalated(snapshot)
	}
}
