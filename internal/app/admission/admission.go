package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

var (
	ErrCapacityExceeded    = errors.New("admission: guests exceed property capacity")
	ErrPropertyUnavailable = errors.New("admission: property is not available")
	ErrPriceMismatch       = errors.New("admission: submitted total does not match the quoted price")
)

type Request struct {
	PropertyID domainproperty.PropertyID
	Range      daterange.DateRange
	Guests     int
	// TotalPrice is the requester-computed total; it is checked against the
	// authoritative quote rather than trusted.
	TotalPrice money.Money
}

// Controller is the read-only admission gate in front of booking creation.
// It performs no mutation: the overlap pre-check here is a fast path, the
// store-level guard at save time is the real serialization point.
type Controller struct {
	Clock func() time.Time
}

// Admit validates a new booking request against date policy, property
// capacity and the open calendar. On success it returns the property so the
// caller does not re-fetch it.
func (c Controller) Admit(ctx context.Context, unit uow.UnitOfWork, req Request) (*domainproperty.Property, error) {
	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock().UTC()
	}
	if err := domainbooking.ValidateDateRange(req.Range, now); err != nil {
		return nil, err
	}
	if req.Guests <= 0 {
		return nil, domainbooking.ErrInvalidGuests
	}

	prop, err := unit.Properties().ByID(ctx, req.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("admission: property lookup: %w", err)
	}
	if req.Guests > prop.MaxGuests {
		return nil, ErrCapacityExceeded
	}
	if !prop.Available {
		return nil, ErrPropertyUnavailable
	}
	if !req.TotalPrice.IsZero() && !req.TotalPrice.Equal(prop.Quote(req.Range.Nights())) {
		return nil, ErrPriceMismatch
	}

	overlapping, err := unit.Bookings().FindOverlapping(ctx, req.PropertyID, req.Range)
	if err != nil {
		return nil, fmt.Errorf("admission: overlap check: %w", err)
	}
	if len(overlapping) > 0 {
		return nil, domainbooking.ErrDateConflict
	}
	return prop, nil
}
