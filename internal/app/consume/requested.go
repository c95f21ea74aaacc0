package consume

import (
	"context"
	"errors"
	"log/slog"

	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
)

// RequestedProjector runs on the approver side. It materializes the local
// PENDING projection of a booking announced on the booking-requests topic.
type RequestedProjector struct {
	UoWFactory uow.UoWFactory
	Inbox      Inbox
	Logger     *slog.Logger
}

func (p *RequestedProjector) Handle(ctx context.Context, env Envelope) (Verdict, error) {
	ev, err := env.Requested()
	if err != nil {
		// Unknown shapes must never wedge the partition.
		return Drop, err
	}

	unit, err := p.UoWFactory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return Retry, err
	}
	execCtx := ctx
	if injector, ok := unit.(interface {
		InjectContext(context.Context) context.Context
	}); ok {
		execCtx = injector.InjectContext(ctx)
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()

	if _, err := unit.Bookings().ByID(execCtx, ev.BookingID); err == nil {
		// At-least-once delivery: the projection already exists.
		return Ack, nil
	} else if !errors.Is(err, domainbooking.ErrBookingNotFound) {
		return Retry, err
	}

	if p.Inbox != nil {
		seen, err := p.Inbox.Seen(execCtx, env.EventID)
		if err != nil {
			return Retry, err
		}
		if seen {
			return Ack, nil
		}
	}

	projection, err := domainbooking.NewProjection(domainbooking.CreateParams{
		ID:         ev.BookingID,
		PropertyID: ev.PropertyID,
		TravelerID: ev.TravelerID,
		OwnerID:    ev.OwnerID,
		Range:      ev.Range,
		Guests:     ev.Guests,
		TotalPrice: ev.TotalPrice,
		CreatedAt:  ev.At,
	})
	if err != nil {
		// Structurally invalid event; retrying cannot fix it.
		return Drop, err
	}
	if err := unit.Bookings().Save(execCtx, projection); err != nil {
		return Retry, err
	}
	if err := unit.Commit(execCtx); err != nil {
		return Retry, err
	}
	committed = true

	if p.Logger != nil {
		p.Logger.Info("booking projection created", "booking_id", projection.ID, "property_id", projection.PropertyID)
	}
	return Ack, nil
}

var _ Handler = (*RequestedProjector)(nil)
