package booking

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"staybook/internal/app/dto"
	handlersupport "staybook/internal/app/handlers/support"
	"staybook/internal/app/queries"
	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
)

const listBookingsKey = "booking.list"

// Role scopes a booking listing to the caller's side of the relationship.
type Role string

const (
	RoleTraveler Role = "traveler"
	RoleOwner    Role = "owner"
)

var ErrUnknownRole = errors.New("booking: unknown listing role")

type ListBookingsQuery struct {
	UserID string
	Role   Role
	Status string
}

func (q ListBookingsQuery) Key() string { return listBookingsKey }

type ListBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListBookingsHandler) Handle(ctx context.Context, q ListBookingsQuery) (dto.BookingCollection, error) {
	userID := strings.TrimSpace(q.UserID)
	if userID == "" {
		return dto.BookingCollection{}, ErrCallerIDRequired
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	var bookings []*domainbooking.Booking
	switch q.Role {
	case RoleTraveler, "":
		bookings, err = unit.Bookings().ListByTraveler(execCtx, userID)
	case RoleOwner:
		bookings, err = unit.Bookings().ListByOwner(execCtx, userID)
	default:
		return dto.BookingCollection{}, ErrUnknownRole
	}
	if err != nil {
		return dto.BookingCollection{}, err
	}

	statusFilter := strings.ToUpper(strings.TrimSpace(q.Status))
	items := make([]dto.BookingView, 0, len(bookings))
	for _, b := range bookings {
		if statusFilter != "" && string(b.Status) != statusFilter {
			continue
		}
		items = append(items, dto.MapBooking(b))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if h.Logger != nil {
		h.Logger.Debug("bookings listed", "user_id", userID, "role", q.Role, "count", len(items), "status", statusFilter)
	}

	return dto.BookingCollection{Items: items}, nil
}

var _ queries.Handler[ListBookingsQuery, dto.BookingCollection] = (*ListBookingsHandler)(nil)
