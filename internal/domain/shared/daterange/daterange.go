package daterange

import (
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("daterange: checkout must be after checkin")

// DateRange represents a half-open stay interval [checkIn, checkOut).
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func New(checkIn, checkOut time.Time) (DateRange, error) {
	dr := DateRange{CheckIn: checkIn.UTC(), CheckOut: checkOut.UTC()}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

func (dr DateRange) Validate() error {
	if dr.CheckIn.IsZero() || dr.CheckOut.IsZero() {
		return ErrInvalidRange
	}
	if !dr.CheckOut.After(dr.CheckIn) {
		return ErrInvalidRange
	}
	return nil
}

func (dr DateRange) Nights() int {
	return int(dr.CheckOut.Sub(dr.CheckIn).Hours() / 24)
}

// Overlaps reports whether two half-open intervals intersect. Back-to-back
// stays (one checkout equal to the other check-in) do not overlap.
func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(dr.CheckOut)
}

func (dr DateRange) ContainsDate(t time.Time) bool {
	t = t.UTC()
	return (t.Equal(dr.CheckIn) || t.After(dr.CheckIn)) && t.Before(dr.CheckOut)
}
