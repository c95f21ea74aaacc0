package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"staybook/internal/app/commands"
	"staybook/internal/app/dto"
	bookingapp "staybook/internal/app/handlers/booking"
	"staybook/internal/app/queries"
)

// OwnerBookingHandler is the approver-side HTTP surface: review pending
// requests and settle them.
type OwnerBookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type rejectBookingRequest struct {
	Reason string `json:"reason"`
}

func (h OwnerBookingHandler) List(c *gin.Context) {
	ownerID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.Queries == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, errors.New("queries bus unavailable"))
		return
	}
	query := bookingapp.ListBookingsQuery{
		UserID: ownerID,
		Role:   bookingapp.RoleOwner,
		Status: c.Query("status"),
	}
	result, err := queries.Ask[bookingapp.ListBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OwnerBookingHandler) Approve(c *gin.Context) {
	ownerID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.Commands == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, errors.New("commands bus unavailable"))
		return
	}
	cmd := bookingapp.ApproveBookingCommand{
		OwnerID:   ownerID,
		BookingID: strings.TrimSpace(c.Param("id")),
	}
	result, err := commands.Dispatch[bookingapp.ApproveBookingCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OwnerBookingHandler) Reject(c *gin.Context) {
	ownerID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.Commands == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, errors.New("commands bus unavailable"))
		return
	}
	var req rejectBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	cmd := bookingapp.RejectBookingCommand{
		OwnerID:   ownerID,
		BookingID: strings.TrimSpace(c.Param("id")),
		Reason:    strings.TrimSpace(req.Reason),
	}
	result, err := commands.Dispatch[bookingapp.RejectBookingCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OwnerBookingHandler) Cancel(c *gin.Context) {
	ownerID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.Commands == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, errors.New("commands bus unavailable"))
		return
	}
	var req rejectBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	cmd := bookingapp.CancelBookingCommand{
		CallerID:  ownerID,
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

func (h OwnerBookingHandler) handleError(c *gin.Context, err error) {
	h.respondWithError(c, statusForError(err), err)
}

func (h OwnerBookingHandler) respondWithError(c *gin.Context, status int, err error) {
	if h.Logger != nil {
		h.Logger.Error("owner booking request failed", "status", status, "error", err, "path", c.FullPath())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

var _ OwnerBookingHTTP = OwnerBookingHandler{}
