package booking

import (
	"time"

	"staybook/internal/domain/property"
	"staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

const (
	EventNameRequested     = "booking.requested"
	EventNameStatusUpdated = "booking.status_updated"
)

type BookingRequested struct {
	BookingID  BookingID           `json:"booking_id"`
	PropertyID property.PropertyID `json:"property_id"`
	TravelerID string              `json:"traveler_id"`
	OwnerID    string              `json:"owner_id"`
	Range      daterange.DateRange `json:"range"`
	Guests     int                 `json:"guests"`
	TotalPrice money.Money         `json:"total_price"`
	At         time.Time           `json:"at"`
}

func (e BookingRequested) EventName() string     { return EventNameRequested }
func (e BookingRequested) AggregateID() string   { return string(e.BookingID) }
func (e BookingRequested) OccurredAt() time.Time { return e.At }

type BookingStatusUpdated struct {
	BookingID BookingID `json:"booking_id"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func (e BookingStatusUpdated) EventName() string     { return EventNameStatusUpdated }
func (e BookingStatusUpdated) AggregateID() string   { return string(e.BookingID) }
func (e BookingStatusUpdated) OccurredAt() time.Time { return e.At }
