package consume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainbooking "staybook/internal/domain/booking"
)

// Verdict tells the consumer loop what to do with a message after handling.
type Verdict int

const (
	// Ack commits the read position; the message is done.
	Ack Verdict = iota
	// Retry redelivers the message; after the retry budget it is dead-lettered.
	Retry
	// Drop advances the position without side effects (unrecognized or
	// malformed payloads).
	Drop
)

func (v Verdict) String() string {
	switch v {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Drop:
		return "drop"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Handler processes one decoded event. The returned error is for logging
// only; the verdict decides the message's fate.
type Handler interface {
	Handle(ctx context.Context, env Envelope) (Verdict, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env Envelope) (Verdict, error)

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) (Verdict, error) {
	return f(ctx, env)
}

var (
	ErrMalformedEnvelope = errors.New("consume: malformed event envelope")
	ErrUnknownEventType  = errors.New("consume: unknown event type")
	// ErrUnknownBooking marks a causal-ordering gap: the status update
	// arrived before the local projection was created.
	ErrUnknownBooking = errors.New("consume: unknown booking")
)

// Envelope is the wire shape shared by both topics: a tagged union
// discriminated by Type, carrying the variant payload in Data.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	BookingID  string          `json:"booking_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope validates the outer shape. Unknown types are legal here;
// handlers classify them as Drop.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.EventID == "" || env.Type == "" || env.BookingID == "" {
		return Envelope{}, ErrMalformedEnvelope
	}
	return env, nil
}

// NewEnvelope wraps an encoded event payload for publication.
func NewEnvelope(eventID, eventType, bookingID string, occurredAt time.Time, data []byte) Envelope {
	return Envelope{
		EventID:    eventID,
		Type:       eventType,
		BookingID:  bookingID,
		OccurredAt: occurredAt,
		Data:       data,
	}
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Requested decodes the BookingRequested variant.
func (e Envelope) Requested() (domainbooking.BookingRequested, error) {
	if e.Type != domainbooking.EventNameRequested {
		return domainbooking.BookingRequested{}, ErrUnknownEventType
	}
	var ev domainbooking.BookingRequested
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return domainbooking.BookingRequested{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if ev.BookingID == "" {
		ev.BookingID = domainbooking.BookingID(e.BookingID)
	}
	return ev, nil
}

// StatusUpdated decodes the BookingStatusUpdated variant.
func (e Envelope) StatusUpdated() (domainbooking.BookingStatusUpdated, error) {
	if e.Type != domainbooking.EventNameStatusUpdated {
		return domainbooking.BookingStatusUpdated{}, ErrUnknownEventType
	}
	var ev domainbooking.BookingStatusUpdated
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return domainbooking.BookingStatusUpdated{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if ev.BookingID == "" {
		ev.BookingID = domainbooking.BookingID(e.BookingID)
	}
	return ev, nil
}

// Inbox deduplicates consumed events by id. Seen atomically records the id
// and reports whether it had been recorded before.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}
