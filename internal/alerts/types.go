// Package alerts creates, tracks and ages prioritized alerts with
// automatic escalation timers and a bounded resolved-alert history.
package alerts

import (
	"time"
)

// Priority orders alerts; each carries a numeric rank and, for some
// levels, an auto-escalation timeout.
type Priority string

const (
	PriorityInfo     Priority = "info"
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// priorityRanks gives the canonical ascending order used for sorting and
// escalation. Higher rank means more urgent.
var priorityRanks = map[Priority]int{
	PriorityInfo:     1,
	PriorityLow:      2,
	PriorityMedium:   3,
	PriorityHigh:     4,
	PriorityCritical: 5,
}

// escalationTimeouts gives the auto-escalation delay per priority.
// Critical is already maximal and info is not actionable, so neither
// carries a timeout.
var escalationTimeouts = map[Priority]time.Duration{
	PriorityHigh:   300 * time.Second,
	PriorityMedium: 900 * time.Second,
	PriorityLow:    3600 * time.Second,
}

// escalationOrder is the fixed ascending priority ladder.
var escalationOrder = []Priority{
	PriorityInfo, PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical,
}

// Rank returns the numeric rank of a priority, 0 for unknown values.
func (p Priority) Rank() int {
	return priorityRanks[p]
}

// Valid reports whether p is one of the fixed priorities.
func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// next returns the next higher priority, or p itself at the top.
func (p Priority) next() Priority {
	for i, cur := range escalationOrder {
		if cur == p && i+1 < len(escalationOrder) {
			return escalationOrder[i+1]
		}
	}
	return p
}

// Category classifies an alert.
type Category string

const (
	CategorySecurity       Category = "security"
	CategoryOperational    Category = "operational"
	CategoryIntelligence   Category = "intelligence"
	CategorySystem         Category = "system"
	CategoryAdministrative Category = "administrative"
)

// NoteType types the entries in an alert's note trail.
type NoteType string

const (
	NotePlain          NoteType = "note"
	NoteAcknowledgment NoteType = "acknowledgment"
	NoteResolution     NoteType = "resolution"
	NoteEscalation     NoteType = "escalation"
	NoteAssignment     NoteType = "assignment"
)

// Note is one entry in an alert's ordered note trail.
type Note struct {
	Type      NoteType  `json:"type"`
	Actor     string    `json:"actor,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is a tracked condition needing attention. An alert is either
// active (in the live set) or resolved (moved to history), never both.
// Resolution is terminal.
type Alert struct {
	ID             string         `json:"id"`
	Priority       Priority       `json:"priority"`
	PriorityRank   int            `json:"priority_rank"`
	Category       Category       `json:"category"`
	Title          string         `json:"title"`
	Message        string         `json:"message,omitempty"`
	Source         string         `json:"source,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	RequiresAck    bool           `json:"requires_ack"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	Resolved       bool           `json:"resolved"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	Notes          []Note         `json:"notes,omitempty"`
	EscalationLvl  int            `json:"escalation_level"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// clone returns a deep-enough copy for emission outside the lock.
func (a *Alert) clone() *Alert {
	cp := *a
	if a.Notes != nil {
		cp.Notes = make([]Note, len(a.Notes))
		copy(cp.Notes, a.Notes)
	}
	return &cp
}

// CreateOptions describes an alert to create.
type CreateOptions struct {
	ID           string         `json:"id,omitempty"`
	Priority     Priority       `json:"priority,omitempty"`
	Category     Category       `json:"category,omitempty"`
	Title        string         `json:"title"`
	Message      string         `json:"message,omitempty"`
	Source       string         `json:"source,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	RequiresAck  bool           `json:"requires_ack,omitempty"`
	AutoEscalate *bool          `json:"auto_escalate,omitempty"`
}

// ActiveFilter narrows Active results. Zero values match everything.
type ActiveFilter struct {
	Priority           Priority
	Category           Category
	UnacknowledgedOnly bool
}

// HistoryFilter narrows History results.
type HistoryFilter struct {
	Priority Priority
	Category Category
	Since    time.Time
	Until    time.Time
}

// AlertCounts aggregates the live set.
type AlertCounts struct {
	Active         int              `json:"active"`
	Unacknowledged int              `json:"unacknowledged"`
	ByPriority     map[Priority]int `json:"by_priority"`
	ByCategory     map[Category]int `json:"by_category"`
}
