package consume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"staybook/internal/app/notify"
	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
)

// StatusNotifier runs on the requester side. It folds status updates from
// the booking-updates topic into the local booking copy and fans out a user
// notification. Handling is idempotent on (bookingID, status): redelivery of
// an already-applied status acks without a second notification.
type StatusNotifier struct {
	UoWFactory uow.UoWFactory
	Inbox      Inbox
	Notifier   notify.Notifier
	Logger     *slog.Logger
	Clock      func() time.Time
}

func (n *StatusNotifier) Handle(ctx context.Context, env Envelope) (Verdict, error) {
	ev, err := env.StatusUpdated()
	if err != nil {
		return Drop, err
	}
	status, err := domainbooking.ParseStatus(string(ev.Status))
	if err != nil {
		return Drop, fmt.Errorf("%w: %q", err, ev.Status)
	}

	unit, err := n.UoWFactory.Begin(ctx, uow.TxOptions{})
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

	booking, err := unit.Bookings().ByID(execCtx, ev.BookingID)
	if err != nil {
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			// Causal gap: the update crossed topics ahead of the local
			// create. The create is guaranteed to land, so retry.
			return Retry, fmt.Errorf("%w: %s", ErrUnknownBooking, ev.BookingID)
		}
		return Retry, err
	}

	if n.Inbox != nil {
		seen, err := n.Inbox.Seen(execCtx, env.EventID)
		if err != nil {
			return Retry, err
		}
		if seen {
			return Ack, nil
		}
	}

	changed, err := booking.ApplyRemoteStatus(status, ev.Reason, n.now())
	if err != nil {
		// Per-key ordering makes a genuinely impossible edge a stale or
		// duplicate announcement; it cannot be fixed by retrying.
		return Drop, err
	}
	if !changed {
		if err := unit.Commit(execCtx); err != nil {
			return Retry, err
		}
		committed = true
		return Ack, nil
	}

	if err := unit.Bookings().Save(execCtx, booking); err != nil {
		return Retry, err
	}
	if err := unit.Commit(execCtx); err != nil {
		return Retry, err
	}
	committed = true

	if n.Notifier != nil {
		notification := notify.Notification{
			BookingID:  booking.ID,
			TravelerID: booking.TravelerID,
			Status:     status,
			Reason:     ev.Reason,
		}
		if err := n.Notifier.Notify(ctx, notification); err != nil && n.Logger != nil {
			// The status is durably applied; notification delivery is
			// at-least-once and may lag behind.
			n.Logger.Warn("notification delivery failed", "booking_id", booking.ID, "error", err)
		}
	}
	if n.Logger != nil {
		n.Logger.Info("booking status applied", "booking_id", booking.ID, "status", status)
	}
	return Ack, nil
}

func (n *StatusNotifier) now() time.Time {
	if n.Clock != nil {
		return n.Clock().UTC()
	}
	return time.Now().UTC()
}

var _ Handler = (*StatusNotifier)(nil)
