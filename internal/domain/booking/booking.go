package booking

import (
	"context"
	"errors"
	"time"

	"staybook/internal/domain/property"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/events"
	"staybook/internal/domain/shared/money"
)

var (
	ErrInvalidGuests     = errors.New("booking: guests count must be positive")
	ErrTravelerRequired  = errors.New("booking: traveler id required")
	ErrOwnerRequired     = errors.New("booking: owner id required")
	ErrInvalidTransition = errors.New("booking: invalid state transition")
	// ErrDateConflict is raised both by the admission pre-check and by the
	// store-level guard that serializes racing creates for one property.
	ErrDateConflict    = errors.New("booking: dates conflict with an existing booking")
	ErrBookingNotFound = errors.New("booking: not found")
	ErrUnknownStatus   = errors.New("booking: unknown status")
)

type BookingID string

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Actor identifies who triggers a transition.
type Actor string

const (
	ActorTraveler Actor = "traveler"
	ActorOwner    Actor = "owner"
	ActorSystem   Actor = "system"
	// ActorRemote stands in for the party that performed the transition on
	// the other service when a status update arrives over the broker.
	ActorRemote Actor = "remote"
)

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted:
		return Status(raw), nil
	}
	return "", ErrUnknownStatus
}

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Booking struct {
	ID                 BookingID
	PropertyID         property.PropertyID
	TravelerID         string
	OwnerID            string
	Range              daterange.DateRange
	Guests             int
	TotalPrice         money.Money
	Status             Status
	CancelledBy        Actor
	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Save(ctx context.Context, booking *Booking) error
	ListByTraveler(ctx context.Context, travelerID string) ([]*Booking, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Booking, error)
	// FindOverlapping returns bookings for the property whose half-open date
	// interval intersects the given range and whose status still blocks the
	// calendar (PENDING or ACCEPTED).
	FindOverlapping(ctx context.Context, propertyID property.PropertyID, dr daterange.DateRange) ([]*Booking, error)
	ListAcceptedEndedBefore(ctx context.Context, cutoff time.Time) ([]*Booking, error)
}

// Blocking reports whether a booking in this status holds its dates against
// overlapping requests.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusAccepted
}

type CreateParams struct {
	ID         BookingID
	PropertyID property.PropertyID
	TravelerID string
	OwnerID    string
	Range      daterange.DateRange
	Guests     int
	TotalPrice money.Money
	CreatedAt  time.Time
}

func validateCreate(params CreateParams) error {
	if params.Guests <= 0 {
		return ErrInvalidGuests
	}
	if params.TravelerID == "" {
		return ErrTravelerRequired
	}
	if params.OwnerID == "" {
		return ErrOwnerRequired
	}
	return params.Range.Validate()
}

// NewBooking creates the requester-side booking in PENDING and records the
// BookingRequested event for publication.
func NewBooking(params CreateParams) (*Booking, error) {
	b, err := newFromParams(params)
	if err != nil {
		return nil, err
	}
	b.Record(BookingRequested{
		BookingID:  b.ID,
		PropertyID: b.PropertyID,
		TravelerID: b.TravelerID,
		OwnerID:    b.OwnerID,
		Range:      b.Range,
		Guests:     b.Guests,
		TotalPrice: b.TotalPrice,
		At:         b.CreatedAt,
	})
	return b, nil
}

// NewProjection materializes the approver-side copy of a booking from a
// received BookingRequested event. No event is recorded: the create was
// already announced by the requester.
func NewProjection(params CreateParams) (*Booking, error) {
	return newFromParams(params)
}

func newFromParams(params CreateParams) (*Booking, error) {
	if err := validateCreate(params); err != nil {
		return nil, err
	}
	now := params.CreatedAt.UTC()
	return &Booking{
		ID:         params.ID,
		PropertyID: params.PropertyID,
		TravelerID: params.TravelerID,
		OwnerID:    params.OwnerID,
		Range:      params.Range,
		Guests:     params.Guests,
		TotalPrice: params.TotalPrice,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// transitionAllowed is the single source of truth for the status machine.
func transitionAllowed(from, to Status, actor Actor) bool {
	if actor == ActorRemote {
		// Remote updates replay a transition already validated on the side
		// that performed it; only the shape of the edge is checked.
		return transitionAllowed(from, to, ActorTraveler) ||
			transitionAllowed(from, to, ActorOwner) ||
			transitionAllowed(from, to, ActorSystem)
	}
	switch {
	case from == StatusPending && to == StatusAccepted:
		return actor == ActorOwner
	case from == StatusPending && to == StatusRejected:
		return actor == ActorOwner
	case from == StatusPending && to == StatusCancelled:
		return actor == ActorTraveler
	case from == StatusAccepted && to == StatusCancelled:
		return actor == ActorTraveler || actor == ActorOwner
	case from == StatusAccepted && to == StatusCompleted:
		return actor == ActorSystem
	}
	return false
}

// Transition moves the booking to the target status on behalf of the actor,
// stamping cancellation metadata and recording a BookingStatusUpdated event.
func (b *Booking) Transition(target Status, actor Actor, reason string, now time.Time) error {
	if !transitionAllowed(b.Status, target, actor) {
		return ErrInvalidTransition
	}
	now = now.UTC()
	b.Status = target
	b.UpdatedAt = now
	if target == StatusCancelled {
		b.CancelledBy = actor
		b.CancelledAt = &now
		b.CancellationReason = reason
	}
	b.Record(BookingStatusUpdated{BookingID: b.ID, Status: target, Reason: reason, At: now})
	return nil
}

func (b *Booking) Accept(now time.Time) error {
	return b.Transition(StatusAccepted, ActorOwner, "", now)
}

func (b *Booking) Reject(reason string, now time.Time) error {
	return b.Transition(StatusRejected, ActorOwner, reason, now)
}

func (b *Booking) Cancel(actor Actor, reason string, now time.Time) error {
	return b.Transition(StatusCancelled, actor, reason, now)
}

// Complete marks a stay finished. Valid only after the check-out date.
func (b *Booking) Complete(now time.Time) error {
	if now.UTC().Before(b.Range.CheckOut) {
		return ErrInvalidTransition
	}
	return b.Transition(StatusCompleted, ActorSystem, "", now)
}

// ApplyRemoteStatus folds a BookingStatusUpdated received from the other
// service into the local projection. The idempotency key is
// (bookingID, status): redelivery of an already-applied status is a no-op.
// It returns whether the booking actually changed.
func (b *Booking) ApplyRemoteStatus(target Status, reason string, now time.Time) (bool, error) {
	if b.Status == target {
		return false, nil
	}
	if !transitionAllowed(b.Status, target, ActorRemote) {
		return false, ErrInvalidTransition
	}
	now = now.UTC()
	b.Status = target
	b.UpdatedAt = now
	if target == StatusCancelled {
		b.CancelledBy = ActorRemote
		b.CancelledAt = &now
		b.CancellationReason = reason
	}
	return true, nil
}
