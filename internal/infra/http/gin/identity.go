package ginserver

import (
	"errors"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"staybook/internal/app/admission"
	bookingapp "staybook/internal/app/handlers/booking"
	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
	domainrange "staybook/internal/domain/shared/daterange"
	mongodb "staybook/internal/infra/db/mongo"
)

const userIDHeader = "X-User-ID"

var errUserIDRequired = errors.New("http: " + userIDHeader + " header is required")

// requireUserID extracts the caller identity from the X-User-ID header.
// Identity is asserted, not authenticated: upstream infrastructure owns
// authentication.
func requireUserID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(userIDHeader))
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errUserIDRequired.Error()})
		return "", false
	}
	return id, true
}

// statusForError maps application errors onto HTTP statuses shared by the
// traveler and owner handlers.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domainbooking.ErrBookingNotFound),
		errors.Is(err, domainproperty.ErrPropertyNotFound),
		errors.Is(err, bookingapp.ErrBookingNotOwned),
		errors.Is(err, bookingapp.ErrNotBookingParty),
		errors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound
	case errors.Is(err, domainbooking.ErrDateConflict),
		errors.Is(err, domainbooking.ErrInvalidTransition),
		errors.Is(err, mongodb.ErrConcurrentUpdate):
		return http.StatusConflict
	case isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, domainrange.ErrInvalidRange),
		errors.Is(err, domainbooking.ErrCheckInInPast),
		errors.Is(err, domainbooking.ErrInvalidGuests),
		errors.Is(err, domainbooking.ErrUnknownStatus),
		errors.Is(err, bookingapp.ErrBookingIDRequired),
		errors.Is(err, bookingapp.ErrCallerIDRequired),
		errors.Is(err, bookingapp.ErrUnknownRole),
		errors.Is(err, admission.ErrCapacityExceeded),
		errors.Is(err, admission.ErrPropertyUnavailable),
		errors.Is(err, admission.ErrPriceMismatch):
		return true
	}
	return false
}
