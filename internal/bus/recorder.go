package bus

import "sync"

// RecordedEvent is a single captured emission.
type RecordedEvent struct {
	Subject string
	Payload any
}

// Recorder is an in-memory Emitter that captures events for inspection.
// Component tests use it in place of the NATS bus.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit captures the event.
func (r *Recorder) Emit(subject string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Subject: subject, Payload: payload})
}

// Events returns a copy of all captured events in emission order.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// BySubject returns captured events matching a subject.
func (r *Recorder) BySubject(subject string) []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedEvent
	for _, e := range r.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all captured events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
