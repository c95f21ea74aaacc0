package schedule

import (
	"context"
	"log/slog"
	"time"

	"staybook/internal/app/commands"
	bookingapp "staybook/internal/app/handlers/booking"
)

// CompletionSweeper periodically dispatches the completion command so that
// accepted stays past their check-out date converge to COMPLETED without an
// operator in the loop.
type CompletionSweeper struct {
	Bus      commands.Bus
	Interval time.Duration
	Logger   *slog.Logger
}

func (s *CompletionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cmd := bookingapp.CompleteDueBookingsCommand{Now: time.Now().UTC()}
			if _, err := s.Bus.Dispatch(ctx, cmd); err != nil {
				if s.Logger != nil {
					s.Logger.Warn("completion sweep failed", "error", err)
				}
			}
		}
	}
}

func (s *CompletionSweeper) interval() time.Duration {
	if s.Interval <= 0 {
		return time.Minute
	}
	return s.Interval
}
