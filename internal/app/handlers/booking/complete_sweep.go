package booking

import (
	"context"
	"log/slog"
	"time"

	"staybook/internal/app/commands"
	"staybook/internal/app/outbox"
	"staybook/internal/app/uow"
)

const completeDueBookingsKey = "booking.complete_due"

// CompleteDueBookingsCommand moves ACCEPTED bookings whose check-out date
// has passed to COMPLETED on behalf of the system actor.
type CompleteDueBookingsCommand struct {
	Now time.Time
}

func (c CompleteDueBookingsCommand) Key() string { return completeDueBookingsKey }

type CompleteDueBookingsResult struct {
	Completed int `json:"completed"`
}

type CompleteDueBookingsHandler struct {
	transitionDeps
}

func NewCompleteDueBookingsHandler(box outbox.Outbox, logger *slog.Logger) *CompleteDueBookingsHandler {
	return &CompleteDueBookingsHandler{transitionDeps{Outbox: box, Logger: logger}}
}

func (h *CompleteDueBookingsHandler) Handle(ctx context.Context, cmd CompleteDueBookingsCommand) (*CompleteDueBookingsResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	due, err := unit.Bookings().ListAcceptedEndedBefore(ctx, now)
	if err != nil {
		return nil, err
	}
	completed := 0
	for _, b := range due {
		if err := b.Complete(now); err != nil {
			// Not yet past check-out; the range query is inclusive of the
			// cutoff instant, the aggregate has the final say.
			continue
		}
		if err := h.persistAndRecord(ctx, unit, b); err != nil {
			return nil, err
		}
		completed++
	}
	if h.Logger != nil && completed > 0 {
		h.Logger.Info("due bookings completed", "count", completed)
	}
	return &CompleteDueBookingsResult{Completed: completed}, nil
}

var _ commands.Handler[CompleteDueBookingsCommand, *CompleteDueBookingsResult] = (*CompleteDueBookingsHandler)(nil)
