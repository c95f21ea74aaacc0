package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"staybook/internal/app/commands"
	"staybook/internal/app/outbox"
	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
)

const (
	approveBookingKey = "booking.approve"
	rejectBookingKey  = "booking.reject"
	cancelBookingKey  = "booking.cancel"
)

var (
	ErrBookingNotOwned   = errors.New("booking: not owned by caller")
	ErrNotBookingParty   = errors.New("booking: caller is neither traveler nor owner")
	ErrBookingIDRequired = errors.New("booking: booking id is required")
	ErrCallerIDRequired  = errors.New("booking: caller id is required")
)

type ApproveBookingCommand struct {
	OwnerID   string
	BookingID string
}

func (c ApproveBookingCommand) Key() string { return approveBookingKey }

type RejectBookingCommand struct {
	OwnerID   string
	BookingID string
	Reason    string
}

func (c RejectBookingCommand) Key() string { return rejectBookingKey }

type CancelBookingCommand struct {
	CallerID  string
	BookingID string
	Reason    string
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

type TransitionResult struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// transitionDeps bundles what every status-changing handler needs: the saved
// transition must be followed by a status event in the same unit of work.
type transitionDeps struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Logger  *slog.Logger
}

func (d transitionDeps) persistAndRecord(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return err
	}
	pending := b.PendingEvents()
	b.ClearEvents()
	encoder := d.Encoder
	if encoder == nil {
		encoder = outbox.JSONEventEncoder{}
	}
	return outbox.RecordDomainEvents(ctx, d.Outbox, encoder, pending)
}

type ApproveBookingHandler struct {
	transitionDeps
}

func NewApproveBookingHandler(box outbox.Outbox, logger *slog.Logger) *ApproveBookingHandler {
	return &ApproveBookingHandler{transitionDeps{Outbox: box, Logger: logger}}
}

func (h *ApproveBookingHandler) Handle(ctx context.Context, cmd ApproveBookingCommand) (*TransitionResult, error) {
	booking, unit, err := loadOwnedBooking(ctx, cmd.OwnerID, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.Accept(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := h.persistAndRecord(ctx, unit, booking); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("booking approved", "booking_id", booking.ID, "owner_id", cmd.OwnerID)
	}
	return &TransitionResult{BookingID: string(booking.ID), Status: string(booking.Status)}, nil
}

type RejectBookingHandler struct {
	transitionDeps
}

func NewRejectBookingHandler(box outbox.Outbox, logger *slog.Logger) *RejectBookingHandler {
	return &RejectBookingHandler{transitionDeps{Outbox: box, Logger: logger}}
}

func (h *RejectBookingHandler) Handle(ctx context.Context, cmd RejectBookingCommand) (*TransitionResult, error) {
	booking, unit, err := loadOwnedBooking(ctx, cmd.OwnerID, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "owner-rejected"
	}
	if err := booking.Reject(reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := h.persistAndRecord(ctx, unit, booking); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("booking rejected", "booking_id", booking.ID, "owner_id", cmd.OwnerID, "reason", reason)
	}
	return &TransitionResult{BookingID: string(booking.ID), Status: string(booking.Status)}, nil
}

type CancelBookingHandler struct {
	transitionDeps
}

func NewCancelBookingHandler(box outbox.Outbox, logger *slog.Logger) *CancelBookingHandler {
	return &CancelBookingHandler{transitionDeps{Outbox: box, Logger: logger}}
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*TransitionResult, error) {
	callerID := strings.TrimSpace(cmd.CallerID)
	if callerID == "" {
		return nil, ErrCallerIDRequired
	}
	bookingID := strings.TrimSpace(cmd.BookingID)
	if bookingID == "" {
		return nil, ErrBookingIDRequired
	}
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, uow.ErrUnitOfWorkMissing
	}
	booking, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(bookingID))
	if err != nil {
		return nil, err
	}
	var actor domainbooking.Actor
	switch callerID {
	case booking.TravelerID:
		actor = domainbooking.ActorTraveler
	case booking.OwnerID:
		actor = domainbooking.ActorOwner
	default:
		return nil, ErrNotBookingParty
	}
	reason := strings.TrimSpace(cmd.Reason)
	if err := booking.Cancel(actor, reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := h.persistAndRecord(ctx, unit, booking); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("booking cancelled", "booking_id", booking.ID, "actor", actor, "reason", reason)
	}
	return &TransitionResult{BookingID: string(booking.ID), Status: string(booking.Status)}, nil
}

func loadOwnedBooking(ctx context.Context, ownerID, bookingID string) (*domainbooking.Booking, uow.UnitOfWork, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, nil, ErrCallerIDRequired
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, nil, ErrBookingIDRequired
	}
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return nil, nil, uow.ErrUnitOfWorkMissing
	}
	booking, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(bookingID))
	if err != nil {
		return nil, nil, err
	}
	if booking.OwnerID != ownerID {
		return nil, nil, ErrBookingNotOwned
	}
	return booking, unit, nil
}

var _ commands.Handler[ApproveBookingCommand, *TransitionResult] = (*ApproveBookingHandler)(nil)
var _ commands.Handler[RejectBookingCommand, *TransitionResult] = (*RejectBookingHandler)(nil)
var _ commands.Handler[CancelBookingCommand, *TransitionResult] = (*CancelBookingHandler)(nil)
