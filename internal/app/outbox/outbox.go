package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"staybook/internal/domain/shared/events"
)

// EventRecord is the persisted intent to publish one domain event.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// Outbox stores event records alongside the state transition that produced
// them; a dispatcher drains them to the broker afterwards.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    map[string]string{},
	}, nil
}

// RecordDomainEvents encodes and stores all pending aggregate events.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		if err := box.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
