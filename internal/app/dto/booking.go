package dto

import (
	"time"

	domainbooking "staybook/internal/domain/booking"
	"staybook/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type BookingView struct {
	ID                 string     `json:"id"`
	PropertyID         string     `json:"property_id"`
	TravelerID         string     `json:"traveler_id"`
	OwnerID            string     `json:"owner_id"`
	CheckIn            time.Time  `json:"check_in"`
	CheckOut           time.Time  `json:"check_out"`
	Guests             int        `json:"guests"`
	TotalPrice         MoneyDTO   `json:"total_price"`
	Status             string     `json:"status"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type BookingCollection struct {
	Items []BookingView `json:"items"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{Amount: value.Amount, Currency: value.Currency}
}

func MapBooking(b *domainbooking.Booking) BookingView {
	return BookingView{
		ID:                 string(b.ID),
		PropertyID:         string(b.PropertyID),
		TravelerID:         b.TravelerID,
		OwnerID:            b.OwnerID,
		CheckIn:            b.Range.CheckIn,
		CheckOut:           b.Range.CheckOut,
		Guests:             b.Guests,
		TotalPrice:         MapMoney(b.TotalPrice),
		Status:             string(b.Status),
		CancelledBy:        string(b.CancelledBy),
		CancelledAt:        b.CancelledAt,
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}
