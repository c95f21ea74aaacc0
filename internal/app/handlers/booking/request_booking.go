package booking

import (
	"context"
	"errors"
	"time"

	"staybook/internal/app/admission"
	"staybook/internal/app/commands"
	"staybook/internal/app/middleware"
	"staybook/internal/app/outbox"
	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
	domainrange "staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

const requestBookingKey = "booking.request"

type RequestBookingCommand struct {
	CommandID       string
	PropertyID      string
	TravelerID      string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	TotalPrice      money.Money
	IdempotencyKeyV string
}

func (c RequestBookingCommand) Key() string { return requestBookingKey }

func (c RequestBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c RequestBookingCommand) ResultPrototype() any { return &RequestBookingResult{} }

type RequestBookingResult struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

var ErrUnitOfWorkRequired = errors.New("booking: unit of work required")

// RequestBookingHandler admits and creates a booking in PENDING, recording
// the BookingRequested event to the outbox inside the same unit of work so
// the event is published only if the booking was durably saved.
type RequestBookingHandler struct {
	UoWFactory uow.UoWFactory
	Admission  admission.Controller
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
}

func (h *RequestBookingHandler) Handle(ctx context.Context, cmd RequestBookingCommand) (*RequestBookingResult, error) {
	unit, ok := uow.FromContext(ctx)
	managed := false
	committed := false
	if !ok {
		if h.UoWFactory == nil {
			return nil, ErrUnitOfWorkRequired
		}
		var err error
		unit, err = h.UoWFactory.Begin(ctx, uow.TxOptions{})
		if err != nil {
			return nil, err
		}
		ctx = uow.ContextWithUnitOfWork(ctx, unit)
		managed = true
	}
	if managed {
		defer func() {
			if !committed {
				_ = unit.Rollback(ctx)
			}
		}()
	}

	dr, err := domainrange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, err
	}

	prop, err := h.Admission.Admit(ctx, unit, admission.Request{
		PropertyID: domainproperty.PropertyID(cmd.PropertyID),
		Range:      dr,
		Guests:     cmd.Guests,
		TotalPrice: cmd.TotalPrice,
	})
	if err != nil {
		return nil, err
	}

	total := cmd.TotalPrice
	if total.IsZero() {
		total = prop.Quote(dr.Nights())
	}

	booking, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         domainbooking.BookingID(cmd.CommandID),
		PropertyID: prop.ID,
		TravelerID: cmd.TravelerID,
		OwnerID:    prop.OwnerID,
		Range:      dr,
		Guests:     cmd.Guests,
		TotalPrice: total,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := unit.Bookings().Save(ctx, booking); err != nil {
		return nil, err
	}

	pending := booking.PendingEvents()
	booking.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), pending); err != nil {
		return nil, err
	}

	if managed {
		if err := unit.Commit(ctx); err != nil {
			return nil, err
		}
		committed = true
	}

	return &RequestBookingResult{BookingID: string(booking.ID), Status: string(booking.Status)}, nil
}

func (h *RequestBookingHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[RequestBookingCommand, *RequestBookingResult] = (*RequestBookingHandler)(nil)
var _ middleware.IdempotentCommand = (*RequestBookingCommand)(nil)
