package notify

import (
	"context"
	"log/slog"

	domainbooking "staybook/internal/domain/booking"
)

// Notification is the user-facing consequence of a booking status change.
type Notification struct {
	BookingID  domainbooking.BookingID
	TravelerID string
	Status     domainbooking.Status
	Reason     string
}

// Notifier is a pluggable delivery sink (mail, push, chat). Implementations
// must tolerate duplicate notifications for the same (booking, status) pair.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// SlogNotifier writes notifications to the structured log. It stands in for
// a real delivery channel in dev and tests.
type SlogNotifier struct {
	Logger *slog.Logger
}

func (s SlogNotifier) Notify(ctx context.Context, n Notification) error {
	if s.Logger != nil {
		s.Logger.Info("booking notification",
			"booking_id", n.BookingID,
			"traveler_id", n.TravelerID,
			"status", n.Status,
			"reason", n.Reason,
		)
	}
	return nil
}

var _ Notifier = SlogNotifier{}
