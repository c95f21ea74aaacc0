package booking

import (
	"errors"
	"time"

	"staybook/internal/domain/shared/daterange"
)

var ErrCheckInInPast = errors.New("booking: check-in date is in the past")

// ValidateDateRange enforces the no-past-check-in policy at calendar day
// granularity (UTC).
func ValidateDateRange(dr daterange.DateRange, now time.Time) error {
	if err := dr.Validate(); err != nil {
		return err
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	checkInDate := time.Date(dr.CheckIn.Year(), dr.CheckIn.Month(), dr.CheckIn.Day(), 0, 0, 0, 0, time.UTC)
	if checkInDate.Before(today) {
		return ErrCheckInInPast
	}
	return nil
}
