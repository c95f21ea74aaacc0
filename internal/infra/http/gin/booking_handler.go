package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	bookingapp "staybook/internal/app/handlers/booking"
	"staybook/internal/app/queries"
	"staybook/internal/domain/shared/money"
)

// TravelerBookingHandler is the requester-side HTTP surface: create, list and
// cancel bookings on behalf of the traveler identified by X-User-ID.
type TravelerBookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createBookingRequest struct {
	PropertyID string       `json:"property_id" binding:"required"`
	CheckIn    time.Time    `json:"check_in" binding:"required"`
	CheckOut   time.Time    `json:"check_out" binding:"required"`
	Guests     int          `json:"guests" binding:"required"`
	TotalPrice dto.MoneyDTO `json:"total_price"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (h TravelerBookingHandler) Create(c *gin.Context) {
	travelerID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.Commands == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, errors.New("commands bus unavailable"))
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, err)
		return
	}
	cmd := bookingapp.RequestBookingCommand{
		CommandID:       generateCommandID(),
		PropertyID:      strings.TrimSpace(req.PropertyID),
		TravelerID:      travelerID,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Guests:          req.Guests,
		TotalPrice:      money.Money{Amount: req.TotalPrice.Amount, Currency: req.TotalPrice.Currency},
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.RequestBookingCommand, *bookingapp.RequestBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h TravelerBookingHandler) List(c *gin.Context) {
	travelerID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.Queries == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, errors.New("queries bus unavailable"))
		return
	}
	query := bookingapp.ListBookingsQuery{
		UserID: travelerID,
		Role:   bookingapp.RoleTraveler,
		Status: c.Query("status"),
	}
	result, err := queries.Ask[bookingapp.ListBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h TravelerBookingHandler) Cancel(c *gin.Context) {
	travelerID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.Commands == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, errors.New("commands bus unavailable"))
		return
	}
	var req cancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	cmd := bookingapp.CancelBookingCommand{
		CallerID:  travelerID,
		BookingID: strings.TrimSpace(c.Param("id")),
		Reason:    strings.TrimSpace(req.Reason),
	}
	result, err := commands.Dispatch[bookingapp.CancelBookingCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h TravelerBookingHandler) handleError(c *gin.Context, err error) {
	h.respondWithError(c, statusForError(err), err)
}

func (h TravelerBookingHandler) respondWithError(c *gin.Context, status int, err error) {
	if h.Logger != nil {
		h.Logger.Error("booking request failed", "status", status, "error", err, "path", c.FullPath())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func generateCommandID() string {
	return uuid.NewString()
}

var _ TravelerBookingHTTP = TravelerBookingHandler{}
