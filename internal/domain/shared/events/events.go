package events

import "time"

// DomainEvent is raised by an aggregate and later shipped through the outbox.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder collects pending events on an aggregate until the application
// layer drains them into the outbox.
type EventRecorder struct {
	pending []DomainEvent
}

func (r *EventRecorder) Record(event DomainEvent) {
	if event == nil {
		return
	}
	r.pending = append(r.pending, event)
}

func (r *EventRecorder) PendingEvents() []DomainEvent {
	out := make([]DomainEvent, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *EventRecorder) ClearEvents() {
	r.pending = nil
}
